// Package mi implements a parser for GDB's machine interface (MI) output.
//
// GDB/MI output is line oriented. Each line is one of:
//   - a result record:        [token]^done,bkpt={number="1",line="12"}
//   - an async record:        *stopped,reason="breakpoint-hit"  (exec)
//                             +download,...                      (status)
//                             =breakpoint-modified,bkpt={...}    (notify)
//   - a stream record:        ~"text"  (console) @"text" (target) &"text" (log)
//   - the prompt delimiter:   (gdb)
//
// This package turns that text into typed Records. It performs no I/O; framing of a
// live byte stream is handled by Decoder.
//
// The grammar is described at:
// https://sourceware.org/gdb/current/onlinedocs/gdb.html/GDB_002fMI-Output-Syntax.html
package mi

import (
	"strings"

	"github.com/spf13/cast"
)

// Kind identifies the shape of a Value
type Kind int

const (
	// KindNone is the zero Value, returned for missing fields
	KindNone Kind = iota
	// KindScalar is a C-string constant
	KindScalar
	// KindList is a [ ... ] list of values or of name=value results
	KindList
	// KindTuple is a { ... } tuple of name=value results
	KindTuple
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Field is one element of a tuple or list. Name is empty for plain list values.
type Field struct {
	Name  string
	Value Value
}

// Value is a node of the MI structured value tree.
type Value struct {
	kind   Kind
	scalar string
	items  []Field
}

// Scalar builds a scalar value
func Scalar(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// List builds a list value from plain values
func List(values ...Value) Value {
	items := make([]Field, len(values))
	for i, v := range values {
		items[i] = Field{Value: v}
	}
	return Value{kind: KindList, items: items}
}

// Tuple builds a tuple value from results
func Tuple(fields ...Field) Value {
	return Value{kind: KindTuple, items: fields}
}

// Kind returns the value's shape
func (v Value) Kind() Kind {
	return v.kind
}

// IsZero reports whether the value is missing
func (v Value) IsZero() bool {
	return v.kind == KindNone
}

// String returns the scalar text, or "" for non-scalars
func (v Value) String() string {
	if v.kind != KindScalar {
		return ""
	}
	return v.scalar
}

// Int converts a scalar to an integer
func (v Value) Int() (int, error) {
	return cast.ToIntE(strings.TrimSpace(v.String()))
}

// IntOr converts a scalar to an integer, returning def when it is missing or malformed
func (v Value) IntOr(def int) int {
	n, err := v.Int()
	if err != nil {
		return def
	}
	return n
}

// Items returns the ordered elements of a tuple or list
func (v Value) Items() []Field {
	return v.items
}

// Values returns the element values of a tuple or list, dropping names
func (v Value) Values() []Value {
	values := make([]Value, len(v.items))
	for i, it := range v.items {
		values[i] = it.Value
	}
	return values
}

// Len returns the number of elements of a tuple or list
func (v Value) Len() int {
	return len(v.items)
}

// Get returns the first element named name, or the zero Value
func (v Value) Get(name string) Value {
	for _, it := range v.items {
		if it.Name == name {
			return it.Value
		}
	}
	return Value{}
}

// Has reports whether an element named name exists
func (v Value) Has(name string) bool {
	return !v.Get(name).IsZero()
}

// Path walks nested tuples, e.g. Path("frame", "line")
func (v Value) Path(names ...string) Value {
	cur := v
	for _, n := range names {
		cur = cur.Get(n)
		if cur.IsZero() {
			return cur
		}
	}
	return cur
}

// Strings returns the scalar elements of a list
func (v Value) Strings() []string {
	out := make([]string, 0, len(v.items))
	for _, it := range v.items {
		out = append(out, it.Value.String())
	}
	return out
}

// Encode renders the value back into MI syntax
func (v Value) Encode() string {
	var sb strings.Builder
	v.encode(&sb)
	return sb.String()
}

func (v Value) encode(sb *strings.Builder) {
	switch v.kind {
	case KindScalar:
		sb.WriteString(Quote(v.scalar))
	case KindList, KindTuple:
		open, closing := byte('['), byte(']')
		if v.kind == KindTuple {
			open, closing = '{', '}'
		}
		sb.WriteByte(open)
		for i, it := range v.items {
			if i > 0 {
				sb.WriteByte(',')
			}
			if it.Name != "" {
				sb.WriteString(it.Name)
				sb.WriteByte('=')
			}
			it.Value.encode(sb)
		}
		sb.WriteByte(closing)
	}
}
