package messages

import (
	"path"
	"reflect"
	"strings"
)

const urnPrefix = "urn:message:"

// Typed lets a message choose its own type urn.
type Typed interface {
	MessageType() string
}

// TypeName returns the message type urn for v.
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	if typed, ok := v.(Typed); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || !rv.IsNil() {
			return typed.MessageType()
		}
	}
	return typeURN(reflect.TypeOf(v))
}

// TypeNameFor returns the message type urn for T without needing a value.
func TypeNameFor[T any]() string {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		if typed, ok := reflect.New(t.Elem()).Interface().(Typed); ok {
			return typed.MessageType()
		}
		return typeURN(t)
	}
	var zero T
	return TypeName(zero)
}

// IsURN reports whether s looks like a message type urn.
func IsURN(s string) bool {
	return strings.HasPrefix(s, urnPrefix)
}

// ShortName strips the urn prefix: "urn:message:orders:Submitted" becomes "orders:Submitted".
func ShortName(messageType string) string {
	return strings.TrimPrefix(messageType, urnPrefix)
}

func typeURN(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	if pkg := t.PkgPath(); pkg != "" {
		return urnPrefix + path.Base(pkg) + ":" + name
	}
	return urnPrefix + name
}
