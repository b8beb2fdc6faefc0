package eventlink

import (
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// serializers maps argument types to the function rendering them in diagnostics.
var serializers = struct {
	sync.RWMutex
	byType map[reflect.Type]func(any) string
}{byType: map[reflect.Type]func(any) string{}}

// RegisterSerializer sets how values of type T are rendered in failure logs.
// It overrides the built-in protobuf, Stringer and error renderings.
func RegisterSerializer[T any](fn func(T) string) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	serializers.Lock()
	defer serializers.Unlock()
	if fn == nil {
		delete(serializers.byType, typ)
		return
	}
	serializers.byType[typ] = func(v any) string { return fn(v.(T)) }
}

// Serialize renders v for diagnostics, choosing the serializer by v's dynamic type.
func Serialize(v any) string {
	if s, ok := serialize(v); ok {
		return s
	}
	return fmt.Sprintf("%+v", v)
}

func serialize(v any) (string, bool) {
	if v == nil {
		return "<nil>", true
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "<nil>", true
	}
	serializers.RLock()
	fn, ok := serializers.byType[reflect.TypeOf(v)]
	serializers.RUnlock()
	if ok {
		return fn(v), true
	}
	switch x := v.(type) {
	case proto.Message:
		if b, err := protojson.Marshal(x); err == nil {
			return string(b), true
		}
	case fmt.Stringer:
		return x.String(), true
	case error:
		return x.Error(), true
	}
	return "", false
}

// serializeArg tries the argument value first and then its address, so
// pointer-receiver String methods and protobuf messages stored by value still
// get their rendering.
func serializeArg[A any](arg *A) string {
	if arg == nil {
		return "<nil>"
	}
	if s, ok := serialize(any(*arg)); ok {
		return s
	}
	if s, ok := serialize(any(arg)); ok {
		return s
	}
	return fmt.Sprintf("%+v", *arg)
}
