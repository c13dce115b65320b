package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: Tagged runtime value
// ---------------------------------------------------------------------------

// Kind identifies the variant stored in a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
)

var kindNames = map[Kind]string{
	KindNil:    "nil",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// StringObject is the heap payload of a string Value. The text is immutable
// after construction; chunks and globals share the same object rather than
// copying, so a string survives as long as anything still references it.
type StringObject struct {
	text string
}

// NewStringObject allocates a string payload.
func NewStringObject(text string) *StringObject {
	return &StringObject{text: text}
}

// Text returns the string contents.
func (s *StringObject) Text() string {
	return s.text
}

// Value is a tagged union over nil, booleans, 64-bit floats and heap-backed
// strings. Every value carries exactly one variant tag; extracting the wrong
// payload panics, since that is an interpreter bug rather than a Lox error.
type Value struct {
	kind Kind
	num  float64       // payload for KindNumber; 0/1 for KindBool
	str  *StringObject // payload for KindString
}

// NilValue returns the nil value.
func NilValue() Value {
	return Value{kind: KindNil}
}

// BoolValue creates a boolean value.
func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// NumberValue creates a number value.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// StringValue creates a string value with a fresh heap payload.
func StringValue(text string) Value {
	return Value{kind: KindString, str: NewStringObject(text)}
}

// StringObjectValue creates a string value sharing an existing payload.
func StringObjectValue(obj *StringObject) Value {
	return Value{kind: KindString, str: obj}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v.kind == KindNil
}

// IsBool returns true if v is a boolean.
func (v Value) IsBool() bool {
	return v.kind == KindBool
}

// IsNumber returns true if v is a number.
func (v Value) IsNumber() bool {
	return v.kind == KindNumber
}

// IsString returns true if v is a string.
func (v Value) IsString() bool {
	return v.kind == KindString
}

// Bool returns v as a bool.
// Panics if v is not a boolean.
func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic("Value.Bool: not a boolean")
	}
	return v.num != 0
}

// Number returns v as a float64.
// Panics if v is not a number.
func (v Value) Number() float64 {
	if v.kind != KindNumber {
		panic("Value.Number: not a number")
	}
	return v.num
}

// StringText returns the string contents of v.
// Panics if v is not a string.
func (v Value) StringText() string {
	if v.kind != KindString {
		panic("Value.StringText: not a string")
	}
	return v.str.Text()
}

// StringPayload returns the heap object backing a string value.
// Panics if v is not a string.
func (v Value) StringPayload() *StringObject {
	if v.kind != KindString {
		panic("Value.StringPayload: not a string")
	}
	return v.str
}

// ---------------------------------------------------------------------------
// Equality and truthiness
// ---------------------------------------------------------------------------

// Equals reports Lox equality. Values of different kinds are never equal;
// strings compare by byte content; numbers follow IEEE semantics, so NaN is
// not equal to itself.
func (v Value) Equals(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool() == other.Bool()
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str.Text() == other.str.Text()
	default:
		return false
	}
}

// IsTruthy returns true if v behaves as true in logical contexts.
// Only nil and false are falsy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.num != 0
	default:
		return true
	}
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// String renders the user-visible form: nil, true, false, the number with
// decimals trimmed when it is exactly integral, or the raw string content.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str.Text()
	default:
		return "<invalid>"
	}
}

// DebugString renders the value for diagnostics; strings are quoted, other
// kinds match String.
func (v Value) DebugString() string {
	if v.kind == KindString {
		return strconv.Quote(v.str.Text())
	}
	return v.String()
}

// formatNumber renders a float the way print does: integral doubles drop
// their decimals, anything else round-trips through the shortest form.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
