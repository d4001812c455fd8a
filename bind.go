package chatkit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
)

// boundFunc is a tool callback checked once at registration.
type boundFunc struct {
	fn      reflect.Value
	withCtx bool
	// param is nil when the callback takes no arguments.
	param reflect.Type
}

func bindFunc(fn any) (*boundFunc, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("chatkit: tool callback must be a function, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("chatkit: tool callback %s is variadic", t)
	}

	b := &boundFunc{fn: v}
	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		b.withCtx = true
		first = 1
	}
	switch t.NumIn() - first {
	case 0:
	case 1:
		b.param = t.In(first)
	default:
		return nil, fmt.Errorf("chatkit: tool callback %s takes more than one parameter", t)
	}

	switch t.NumOut() {
	case 1:
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("chatkit: tool callback %s must return error last", t)
		}
	default:
		return nil, fmt.Errorf("chatkit: tool callback %s must return a value, an error, or both", t)
	}
	return b, nil
}

func (b *boundFunc) call(ctx context.Context, args json.RawMessage) (any, error) {
	in := make([]reflect.Value, 0, 2)
	if b.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	if b.param != nil {
		arg, err := decodeParam(b.param, args)
		if err != nil {
			return nil, err
		}
		in = append(in, arg)
	}

	out := b.fn.Call(in)
	if len(out) == 1 {
		if b.fn.Type().Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	}
	if err := asError(out[1]); err != nil {
		return nil, err
	}
	return out[0].Interface(), nil
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func decodeParam(t reflect.Type, args json.RawMessage) (reflect.Value, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if t == rawMessageType {
		return reflect.ValueOf(args), nil
	}
	base := t
	if t.Kind() == reflect.Ptr {
		base = t.Elem()
	}
	v := reflect.New(base)
	if err := decodeValue(args, v.Elem()); err != nil {
		return reflect.Value{}, fmt.Errorf("decoding arguments: %w", err)
	}
	if t.Kind() == reflect.Ptr {
		return v, nil
	}
	return v.Elem(), nil
}

// decodeValue decodes raw into v, honoring chatkit tags on structs.
func decodeValue(raw json.RawMessage, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Ptr:
		if string(raw) == "null" {
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return decodeValue(raw, v.Elem())
	case reflect.Struct:
		if hasTaggedFields(v.Type()) {
			return decodeTagged(raw, v)
		}
	case reflect.Slice:
		if hasTaggedFields(indirect(v.Type().Elem())) {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return err
			}
			slice := reflect.MakeSlice(v.Type(), len(items), len(items))
			for i, item := range items {
				if err := decodeValue(item, slice.Index(i)); err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
			}
			v.Set(slice)
			return nil
		}
	}
	return json.Unmarshal(raw, v.Addr().Interface())
}

func decodeTagged(raw json.RawMessage, v reflect.Value) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, ok := parseTag(field)
		if !ok {
			continue
		}
		value, present := fields[tag.name]
		if !present || string(value) == "null" {
			continue
		}
		if err := decodeValue(value, v.Field(i)); err != nil {
			return fmt.Errorf("%s: %w", tag.name, err)
		}
	}
	return nil
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func hasTaggedFields(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		if _, ok := parseTag(t.Field(i)); ok {
			return true
		}
	}
	return false
}
