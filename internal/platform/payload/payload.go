// Package payload normalizes loosely shaped upstream HIS responses into a
// tagged value before any field extraction runs. Upstream endpoints answer
// with objects, arrays of objects, bare numbers or plain text depending on
// the record found, so callers never inspect raw JSON directly.
package payload

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the shape of a decoded Value.
type Kind int

const (
	Null Kind = iota
	Scalar
	Record
	List
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Record:
		return "record"
	case List:
		return "list"
	default:
		return "null"
	}
}

// Value is a decoded upstream payload.
type Value struct {
	kind   Kind
	scalar string
	fields map[string]Value
	items  []Value
}

// Decode parses raw as JSON. Bodies that are not JSON become a Scalar holding
// the trimmed text.
func Decode(raw []byte) Value {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{kind: Null}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Value{kind: Scalar, scalar: string(trimmed)}
	}
	return FromInterface(v)
}

// FromInterface converts a value produced by encoding/json into a Value.
func FromInterface(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{kind: Null}
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, fv := range t {
			fields[k] = FromInterface(fv)
		}
		return Value{kind: Record, fields: fields}
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, iv := range t {
			items = append(items, FromInterface(iv))
		}
		return Value{kind: List, items: items}
	case string:
		return Value{kind: Scalar, scalar: t}
	case json.Number:
		return Value{kind: Scalar, scalar: t.String()}
	case float64:
		return Value{kind: Scalar, scalar: strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		return Value{kind: Scalar, scalar: strconv.FormatBool(t)}
	default:
		return Value{kind: Null}
	}
}

// Kind returns the tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v carries no data.
func (v Value) IsNull() bool { return v.kind == Null }

// Text returns the trimmed string form of a Scalar, or "" for other kinds.
func (v Value) Text() string {
	if v.kind != Scalar {
		return ""
	}
	return strings.TrimSpace(v.scalar)
}

// Items returns the elements of a List.
func (v Value) Items() []Value { return v.items }

// Get returns the named member of a Record.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Record {
		return Value{}, false
	}
	f, ok := v.fields[key]
	return f, ok
}

// First returns the first element of a List, or v itself for other kinds.
// An empty List yields Null.
func (v Value) First() Value {
	if v.kind != List {
		return v
	}
	if len(v.items) == 0 {
		return Value{kind: Null}
	}
	return v.items[0]
}

// Field tries keys in priority order on a Record and returns the first member
// that is a non-empty scalar.
func (v Value) Field(keys ...string) (string, bool) {
	if v.kind != Record {
		return "", false
	}
	for _, k := range keys {
		f, ok := v.fields[k]
		if !ok {
			continue
		}
		if s := f.Text(); s != "" {
			return s, true
		}
	}
	return "", false
}

// JoinFields concatenates the non-empty scalar members named by keys with a
// single space.
func (v Value) JoinFields(keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := v.Field(k); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// SoleScalar returns the only scalar member of a Record that has exactly one
// scalar member.
func (v Value) SoleScalar() (string, bool) {
	if v.kind != Record {
		return "", false
	}
	var found string
	count := 0
	for _, f := range v.fields {
		if f.kind == Scalar {
			count++
			found = f.Text()
		}
	}
	if count != 1 || found == "" {
		return "", false
	}
	return found, true
}
