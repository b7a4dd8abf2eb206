// Package filter derives facet values from a flow collection and applies
// per-field equality filters to it.
package filter

import (
	"fmt"
	"strconv"

	"github.com/darkace1998/FlowSentry/internal/model"
)

// Field is one of the filterable flow columns.
type Field int

const (
	Src Field = iota
	SrcPort
	Dest
	DestPort
	Protocol
	Classification
	Risk
)

// Fields lists every filterable field in display order.
var Fields = []Field{Src, SrcPort, Dest, DestPort, Protocol, Classification, Risk}

var fieldNames = [...]string{
	Src:            "Src",
	SrcPort:        "SrcPort",
	Dest:           "Dest",
	DestPort:       "DestPort",
	Protocol:       "Protocol",
	Classification: "Classification",
	Risk:           "Risk",
}

// String returns the field's wire name, matching the FlowRecord JSON key.
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Numeric reports whether the field holds integer values.
func (f Field) Numeric() bool {
	return f == SrcPort || f == DestPort
}

// ParseField maps a wire name to a Field.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter field %q", name)
}

// Value is a field value: an int for port fields, a string otherwise.
type Value struct {
	Str string
	Int int
	num bool
}

// StringValue wraps a string field value.
func StringValue(s string) Value { return Value{Str: s} }

// IntValue wraps a port value.
func IntValue(n int) Value { return Value{Int: n, num: true} }

// IsInt reports whether v holds an integer.
func (v Value) IsInt() bool { return v.num }

// String renders the value as it appears in the UI.
func (v Value) String() string {
	if v.num {
		return strconv.Itoa(v.Int)
	}
	return v.Str
}

// Less orders integers numerically, strings lexicographically, and integers
// before strings.
func (v Value) Less(o Value) bool {
	switch {
	case v.num && o.num:
		return v.Int < o.Int
	case v.num != o.num:
		return v.num
	default:
		return v.Str < o.Str
	}
}

// MarshalJSON encodes ports as numbers and everything else as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.num {
		return []byte(strconv.Itoa(v.Int)), nil
	}
	return []byte(strconv.Quote(v.Str)), nil
}

// Get returns the value of field f on flow r.
func (f Field) Get(r model.FlowRecord) Value {
	switch f {
	case Src:
		return StringValue(r.Src)
	case SrcPort:
		return IntValue(r.SrcPort)
	case Dest:
		return StringValue(r.Dest)
	case DestPort:
		return IntValue(r.DestPort)
	case Protocol:
		return StringValue(r.Protocol)
	case Classification:
		return StringValue(r.Classification)
	case Risk:
		return StringValue(r.Risk)
	default:
		return Value{}
	}
}

// ParseValue converts raw query input into a Value of the field's type.
func (f Field) ParseValue(raw string) (Value, error) {
	if !f.Numeric() {
		return StringValue(raw), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Value{}, fmt.Errorf("field %s expects an integer, got %q", f, raw)
	}
	return IntValue(n), nil
}
