package rpc

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-shipment"
)

// TypeRef names a Go type in published endpoint metadata.
type TypeRef struct {
	GoType  string `json:"goType"`
	PkgPath string `json:"pkgPath,omitempty"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Pointer bool   `json:"pointer,omitempty"`
}

func refOf(t reflect.Type) *TypeRef {
	if t == nil {
		return nil
	}
	elem, pointer := t, t.Kind() == reflect.Pointer
	if pointer {
		elem = t.Elem()
	}
	return &TypeRef{
		GoType:  t.String(),
		PkgPath: elem.PkgPath(),
		Name:    elem.Name(),
		Kind:    t.Kind().String(),
		Pointer: pointer,
	}
}

func (r *TypeRef) clone() *TypeRef {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// coerce fits payload to want. A value is accepted where want is a pointer
// to its type.
func coerce(want reflect.Type, payload any) (reflect.Value, error) {
	if want == nil {
		return reflect.Value{}, fmt.Errorf("rpc request type not configured")
	}
	if payload == nil {
		return reflect.Zero(want), nil
	}
	v := reflect.ValueOf(payload)
	switch {
	case v.Type().AssignableTo(want):
		return v, nil
	case v.Type().ConvertibleTo(want):
		return v.Convert(want), nil
	case want.Kind() == reflect.Pointer && v.Type().AssignableTo(want.Elem()):
		ptr := reflect.New(want.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	}
	return reflect.Value{}, fmt.Errorf("invalid payload type: expected %s got %s", want, v.Type())
}

// messageTypeName reports the shipment message type carried in an envelope's
// Data field, falling back to the Go type name.
func messageTypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		if f, ok := t.FieldByName("Data"); ok {
			t = f.Type
		}
	}
	if msg, ok := reflect.Zero(t).Interface().(shipment.Message); ok {
		return msg.Type()
	}
	return t.String()
}
