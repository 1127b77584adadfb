// Copyright © 2025 The DraftPad authors

// Package snapshot classifies runtime values into a closed set of
// transport-safe kinds and encodes them for the debug wire protocol.
//
// A snapshot entry is immutable once produced for a breakpoint hit.
// Non-primitive values are not serialized; they receive an opaque
// handle into a per-hit Arena, and their children (struct members,
// collection items) are materialized on demand by the interprocess
// server answering GetProperty and GetItems requests.
package snapshot

import (
	"encoding/json"
	"fmt"
	"go/token"
	"reflect"
	"sort"
	"strconv"
)

// Kind is the type-kind discriminant of a captured value.
type Kind int

const (
	// KindString is a string value, encoded verbatim.
	KindString Kind = iota
	// KindChar is a single character. Go cannot distinguish rune from
	// int32 at runtime, so the encoder never produces this kind; it is
	// retained so the decoder stays compatible with peers that do.
	KindChar
	// KindNumber covers every numeric primitive width.
	KindNumber
	// KindBool is a boolean value.
	KindBool
	// KindNull is a nil value (untyped nil, nil pointer, nil interface).
	KindNull
	// KindEnumerable is a slice, array, or map. The entry carries the
	// element type name(s) and, when the value exposes one, a count.
	KindEnumerable
	// KindEnum is a named integer type implementing fmt.Stringer; the
	// entry carries the declared type name and the symbolic name.
	KindEnum
	// KindClass is the catch-all object kind. The entry carries member
	// metadata only; member values are fetched lazily.
	KindClass
	// KindInterface is a value observed through an interface-typed slot.
	KindInterface
	// KindDelegate is a function value.
	KindDelegate
	// KindOther covers values no other kind claims (channels,
	// unsafe pointers).
	KindOther
)

var kindNames = map[Kind]string{
	KindString:     "String",
	KindChar:       "Char",
	KindNumber:     "Number",
	KindBool:       "Bool",
	KindNull:       "Null",
	KindEnumerable: "Enumerable",
	KindEnum:       "Enum",
	KindClass:      "Class",
	KindInterface:  "Interface",
	KindDelegate:   "Delegate",
	KindOther:      "Other",
}

var kindValues = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindValues[name]
	return k, ok
}

// Member identifies a struct field or getter method of a Class value.
// Only identifying metadata crosses the wire; the member's value is
// fetched through GetProperty when the client expands it.
type Member struct {
	Name       string `json:"name"`
	IsProperty bool   `json:"isProperty"`
	NonPublic  bool   `json:"nonPublic"`
}

// Value is one snapshot entry: a kind, a textual encoding, and (for
// non-primitive kinds) a handle valid for the current breakpoint hit.
type Value struct {
	Kind     Kind   `json:"-"`
	Text     string `json:"text"`
	TypeName string `json:"type,omitempty"`
	Handle   Handle `json:"handle,omitempty"`
	Count    int    `json:"count,omitempty"` // -1 when unknown
	// IsMap marks an Enumerable whose items alternate key/value.
	IsMap   bool     `json:"isMap,omitempty"`
	Members []Member `json:"members,omitempty"`
}

// wireValue is the JSON shape of Value with the kind spelled out.
type wireValue struct {
	Kind string `json:"kind"`
	Value
}

// Encode returns the transport encoding of the value: a JSON object
// whose kind field carries the discriminant name.
func (v Value) Encode() string {
	b, err := json.Marshal(wireValue{Kind: v.Kind.String(), Value: v})
	if err != nil {
		// Only unencodable Text could fail, and Text is always a
		// plain string by construction.
		return `{"kind":"Other","text":"<encode error>"}`
	}
	return string(b)
}

// Decode is the structural inverse of Encode.
func Decode(s string) (Value, error) {
	var w wireValue
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Value{}, fmt.Errorf("snapshot: decode value: %w", err)
	}
	kind, ok := ParseKind(w.Kind)
	if !ok {
		return Value{}, fmt.Errorf("snapshot: unknown kind %q", w.Kind)
	}
	v := w.Value
	v.Kind = kind
	return v, nil
}

// Describe classifies a runtime value, producing its snapshot entry.
// Non-primitive values are registered in the arena and receive a
// handle usable with Items and GetMember until the arena resets.
func Describe(val any, arena *Arena) Value {
	if val == nil {
		return Value{Kind: KindNull, Text: "null"}
	}
	return describe(reflect.ValueOf(val), arena)
}

// describe implements the classification order of the codec:
// string, char, number, bool, null, enumerable, enum, then the
// object kinds. First match wins.
func describe(rv reflect.Value, arena *Arena) Value {
	if !rv.IsValid() {
		return Value{Kind: KindNull, Text: "null"}
	}
	// Unwrap interface slots so the dynamic value is classified, but
	// remember that an interface was crossed.
	sawInterface := false
	for rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Value{Kind: KindNull, Text: "null"}
		}
		sawInterface = true
		rv = rv.Elem()
	}

	t := rv.Type()
	switch rv.Kind() {
	case reflect.String:
		return Value{Kind: KindString, Text: rv.String(), TypeName: t.String()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if name, ok := enumName(rv); ok {
			return Value{Kind: KindEnum, Text: name, TypeName: t.String()}
		}
		return Value{Kind: KindNumber, Text: fmt.Sprint(rv.Interface()), TypeName: t.String()}
	case reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return Value{Kind: KindNumber, Text: fmt.Sprint(rv.Interface()), TypeName: t.String()}
	case reflect.Bool:
		return Value{Kind: KindBool, Text: strconv.FormatBool(rv.Bool()), TypeName: t.String()}
	case reflect.Ptr:
		if rv.IsNil() {
			return Value{Kind: KindNull, Text: "null", TypeName: t.String()}
		}
		return describeObject(rv, arena, sawInterface)
	case reflect.Slice, reflect.Array, reflect.Map:
		return describeEnumerable(rv, arena)
	case reflect.Func:
		if rv.IsNil() {
			return Value{Kind: KindNull, Text: "null", TypeName: t.String()}
		}
		return Value{
			Kind:     KindDelegate,
			Text:     fmt.Sprintf("<func %s>", t.String()),
			TypeName: t.String(),
			Handle:   arena.Put(rv.Interface()),
		}
	case reflect.Chan, reflect.UnsafePointer:
		return Value{Kind: KindOther, Text: fmt.Sprintf("<%s>", t.String()), TypeName: t.String()}
	default:
		return describeObject(rv, arena, sawInterface)
	}
}

// enumName reports the symbolic name of a named integer type that
// implements fmt.Stringer. Unnamed integers and plain ints are not
// enums.
func enumName(rv reflect.Value) (string, bool) {
	t := rv.Type()
	if t.Name() == "" || t.PkgPath() == "" {
		return "", false
	}
	s, ok := rv.Interface().(fmt.Stringer)
	if !ok {
		return "", false
	}
	name := func() (out string) {
		defer func() {
			if recover() != nil {
				out = ""
			}
		}()
		return s.String()
	}()
	if name == "" {
		return "", false
	}
	return name, true
}

func describeEnumerable(rv reflect.Value, arena *Arena) Value {
	t := rv.Type()
	var elemTypes string
	if t.Kind() == reflect.Map {
		elemTypes = t.Key().String() + "," + t.Elem().String()
	} else {
		elemTypes = t.Elem().String()
	}
	count := rv.Len() // nil slices and maps report 0
	v := Value{
		Kind:     KindEnumerable,
		Text:     fmt.Sprintf("<%s len=%d>", t.String(), count),
		TypeName: elemTypes,
		Count:    count,
		IsMap:    t.Kind() == reflect.Map,
	}
	if rv.CanInterface() {
		v.Handle = arena.Put(rv.Interface())
	}
	return v
}

// describeObject handles the catch-all case: structs and pointers to
// structs become Class entries with sorted member metadata; values
// seen through an interface slot are tagged Interface.
func describeObject(rv reflect.Value, arena *Arena, sawInterface bool) Value {
	t := rv.Type()
	kind := KindClass
	if sawInterface {
		kind = KindInterface
	}
	v := Value{
		Kind:     kind,
		Text:     fmt.Sprintf("<%s>", t.String()),
		TypeName: t.String(),
		Members:  members(rv),
	}
	if rv.CanInterface() {
		v.Handle = arena.Put(rv.Interface())
	}
	return v
}

// members lists the instance fields and getter methods of a value,
// sorted by name. Getter methods are those with no arguments and a
// single result; they are reported as properties.
func members(rv reflect.Value) []Member {
	seen := make(map[string]bool)
	var out []Member

	elem := rv
	for elem.Kind() == reflect.Ptr {
		if elem.IsNil() {
			break
		}
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		et := elem.Type()
		for i := 0; i < et.NumField(); i++ {
			f := et.Field(i)
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, Member{
				Name:      f.Name,
				NonPublic: !token.IsExported(f.Name),
			})
		}
	}

	t := rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Type.NumIn() != 1 || m.Type.NumOut() != 1 {
			continue
		}
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		out = append(out, Member{
			Name:       m.Name,
			IsProperty: true,
			NonPublic:  !token.IsExported(m.Name),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// memberErrorText is the displayable encoding of a reflection failure
// during remote member access. The paused program must never crash
// because the inspector touched a hostile getter.
func memberErrorText(err any) string {
	return fmt.Sprintf("An error occurred while accessing this member: %v", err)
}

// GetMember fetches a member's value from the object behind a handle.
// Reflection failures (unknown member, unexported field access, a
// panicking getter) are converted into a String entry carrying the
// error text rather than propagated.
func GetMember(arena *Arena, h Handle, name string, isProperty bool) Value {
	obj, ok := arena.Get(h)
	if !ok {
		return Value{Kind: KindString, Text: memberErrorText(fmt.Errorf("stale handle %d", h))}
	}
	var out Value
	func() {
		defer func() {
			if r := recover(); r != nil {
				out = Value{Kind: KindString, Text: memberErrorText(r)}
			}
		}()
		rv := reflect.ValueOf(obj)
		if isProperty {
			m := rv.MethodByName(name)
			if !m.IsValid() {
				out = Value{Kind: KindString, Text: memberErrorText(fmt.Errorf("no method %s", name))}
				return
			}
			results := m.Call(nil)
			if len(results) != 1 {
				out = Value{Kind: KindString, Text: memberErrorText(fmt.Errorf("method %s is not a getter", name))}
				return
			}
			out = describe(results[0], arena)
			return
		}
		for rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			out = Value{Kind: KindString, Text: memberErrorText(fmt.Errorf("%s has no fields", rv.Type()))}
			return
		}
		f := rv.FieldByName(name)
		if !f.IsValid() {
			out = Value{Kind: KindString, Text: memberErrorText(fmt.Errorf("no field %s", name))}
			return
		}
		if !f.CanInterface() {
			out = Value{Kind: KindString, Text: memberErrorText(fmt.Errorf("field %s is not accessible", name))}
			return
		}
		out = describe(f, arena)
	}()
	return out
}

// Items enumerates the elements of the enumerable behind a handle,
// allocating a fresh handle for each non-primitive element. Map items
// are returned in sorted key order so repeated requests agree.
func Items(arena *Arena, h Handle) ([]Value, error) {
	obj, ok := arena.Get(h)
	if !ok {
		return nil, fmt.Errorf("snapshot: stale handle %d", h)
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := range out {
			out[i] = describe(rv.Index(i), arena)
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([]Value, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, describe(k, arena), describe(rv.MapIndex(k), arena))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("snapshot: handle %d is not enumerable", h)
	}
}
