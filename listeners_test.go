package eventlink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type recorder struct {
	calls []string
}

func (r *recorder) listener(name string, err error) Listener[int] {
	return ListenerFunc[int](func(*int) error {
		r.calls = append(r.calls, name)
		return err
	})
}

func TestListenerTableFull(t *testing.T) {
	ch := newTestChannel[int, int](t, 2, WithMaxListeners[int, int](2))
	var r recorder
	_, err := ch.AddListener(r.listener("a", nil))
	require.NoError(t, err)
	_, err = ch.AddListener(r.listener("b", nil))
	require.NoError(t, err)

	_, err = ch.AddListener(r.listener("c", nil))
	assert.ErrorIs(t, err, ErrListenerTableFull)
	assert.Contains(t, err.Error(), "max=2")
	assert.Equal(t, 2, ch.Listeners())
}

func TestRemoveListenerKeepsOrder(t *testing.T) {
	ch := newTestChannel[int, int](t, 2)
	var r recorder
	_, err := ch.AddListener(r.listener("a", nil))
	require.NoError(t, err)
	hb, err := ch.AddListener(r.listener("b", nil))
	require.NoError(t, err)
	_, err = ch.AddListener(r.listener("c", nil))
	require.NoError(t, err)

	assert.True(t, ch.RemoveListener(hb))
	assert.False(t, ch.RemoveListener(hb), "a handle is removed only once")
	assert.Equal(t, 2, ch.Listeners())

	arg := 1
	require.NoError(t, ch.NotifyListeners(&arg))
	assert.Equal(t, []string{"a", "c"}, r.calls)

	_, err = ch.AddListener(r.listener("d", nil))
	require.NoError(t, err)
	r.calls = nil
	require.NoError(t, ch.NotifyListeners(&arg))
	assert.Equal(t, []string{"a", "c", "d"}, r.calls)
}

func TestListenerFailuresAreIsolated(t *testing.T) {
	ch := newTestChannel[int, int](t, 2)
	var r recorder
	boom := errors.New("boom")
	_, _ = ch.AddListener(r.listener("first", nil))
	_, _ = ch.AddListener(r.listener("second", boom))
	_, _ = ch.AddListener(ListenerFunc[int](func(*int) error {
		r.calls = append(r.calls, "third")
		panic("listener panicked")
	}))
	_, _ = ch.AddListener(r.listener("fourth", nil))

	arg := 7
	err := ch.NotifyListeners(&arg)
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, r.calls)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	var le *ListenerError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, 1, le.Index)
	assert.ErrorIs(t, errs[0], boom)

	require.ErrorAs(t, errs[1], &le)
	assert.Equal(t, 2, le.Index)
	var pe *PanicError
	require.ErrorAs(t, errs[1], &pe)
	assert.Equal(t, "listener panicked", pe.Value)
}
