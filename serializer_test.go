package eventlink

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type plain struct {
	A int
	B string
}

type ptrStringer struct {
	N int
}

func (p *ptrStringer) String() string {
	return fmt.Sprintf("ptr(%d)", p.N)
}

type registered struct {
	Key string
}

func (registered) String() string {
	return "stringer"
}

func TestSerializePrecedence(t *testing.T) {
	assert.Equal(t, "<nil>", Serialize(nil))
	assert.Equal(t, "<nil>", Serialize((*plain)(nil)))
	assert.Equal(t, "{A:1 B:x}", Serialize(plain{A: 1, B: "x"}))
	assert.Equal(t, "order#3(1 items)", Serialize(order{ID: 3, Items: 1}))
	assert.Equal(t, "boom", Serialize(errors.New("boom")))
	assert.Contains(t, Serialize(wrapperspb.String("hello")), `"hello"`)

	assert.Equal(t, "stringer", Serialize(registered{Key: "k"}))
	RegisterSerializer(func(r registered) string { return "key=" + r.Key })
	defer RegisterSerializer[registered](nil)
	assert.Equal(t, "key=k", Serialize(registered{Key: "k"}), "registered serializers win over String")

	RegisterSerializer[registered](nil)
	assert.Equal(t, "stringer", Serialize(registered{Key: "k"}))
}

func TestSerializeArgTriesAddress(t *testing.T) {
	v := ptrStringer{N: 4}
	assert.Equal(t, "ptr(4)", serializeArg(&v))

	p := plain{A: 2, B: "y"}
	assert.Equal(t, "{A:2 B:y}", serializeArg(&p))

	msg := wrapperspb.Int64(9)
	assert.Contains(t, serializeArg(&msg), `"9"`)

	assert.Equal(t, "<nil>", serializeArg[plain](nil))
}

func TestChannelSerializerOverride(t *testing.T) {
	ch := newTestChannel[plain, int](t, 1, WithSerializer[plain, int](func(p *plain) string {
		return "plain:" + p.B
	}))
	arg := plain{B: "z"}
	assert.Equal(t, "plain:z", ch.serialize(&arg))

	def := newTestChannel[plain, int](t, 1)
	assert.Equal(t, "{A:0 B:z}", def.serialize(&arg))
}
