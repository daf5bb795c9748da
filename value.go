package filler

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a metric that may be undefined.
// The zero Value is Undefined.
type Value struct {
	v  float64
	ok bool
}

// Undefined is the Value of a ratio whose denominator is zero.
var Undefined = Value{}

// Defined returns a defined Value. NaN and infinities are Undefined.
func Defined(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Value{v: v, ok: true}
}

// ratio returns num/den, or Undefined when den is zero.
func ratio(num, den int) Value {
	if den == 0 {
		return Undefined
	}
	return Defined(float64(num) / float64(den))
}

// Get returns the value and whether it is defined.
func (v Value) Get() (float64, bool) {
	return v.v, v.ok
}

// IsDefined reports whether v holds a number.
func (v Value) IsDefined() bool {
	return v.ok
}

// Or returns the value, or fallback when v is Undefined.
func (v Value) Or(fallback float64) float64 {
	if !v.ok {
		return fallback
	}
	return v.v
}

// String renders undefined values as "None".
func (v Value) String() string {
	if !v.ok {
		return "None"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalYAML encodes Undefined as null.
func (v Value) MarshalYAML() (any, error) {
	if !v.ok {
		return nil, nil
	}
	return v.v, nil
}

// MarshalCSV encodes Undefined as an empty field.
func (v Value) MarshalCSV() (string, error) {
	if !v.ok {
		return "", nil
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64), nil
}

// UnmarshalCSV is the inverse of MarshalCSV.
func (v *Value) UnmarshalCSV(s string) error {
	if s == "" || s == "None" {
		*v = Undefined
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	*v = Defined(f)
	return nil
}
