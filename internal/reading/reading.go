// Package reading defines the value model shared by every telemetry
// producer: a tagged Value, a named Reading, and Set, the insertion-ordered
// snapshot that the HTTP layer serialises.
package reading

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	// KindNumber values carry a float64 whose unit is implied by the name.
	KindNumber Kind = iota
	// KindText values are pre-formatted by their producer ("85.00%", "15G").
	KindText
)

// Value is either a number or a pre-formatted string.
// The zero Value is the number 0.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text returns a string Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric payload and true, or (0, false) for text values.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// String renders numbers in their shortest decimal form (45, 1.05, 0) and
// returns text values unchanged.
func (v Value) String() string {
	if v.kind == KindText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings.
// NaN and the infinities have no JSON form and encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindText {
		return json.Marshal(v.text)
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
}

// Reading is one named telemetry value.
type Reading struct {
	Name  string
	Value Value
}

// Set is an insertion-ordered mapping from reading name to value.
// Names are unique; Put on an existing name replaces the value in place.
// A Set is not safe for concurrent mutation.
type Set struct {
	names  []string
	values map[string]Value
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{values: make(map[string]Value)}
}

// Put stores value under name. A repeated name keeps its original position
// and takes the latest value.
func (s *Set) Put(name string, value Value) {
	if s.values == nil {
		s.values = make(map[string]Value)
	}
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = value
}

// Get returns the value stored under name.
func (s *Set) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of readings.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the reading names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Readings returns the readings in insertion order.
func (s *Set) Readings() []Reading {
	if s == nil {
		return nil
	}
	out := make([]Reading, len(s.names))
	for i, name := range s.names {
		out[i] = Reading{Name: name, Value: s.values[name]}
	}
	return out
}

// Merge puts every reading of other into s, in other's order.
// Colliding names take other's value.
func (s *Set) Merge(other *Set) {
	for _, r := range other.Readings() {
		s.Put(r.Name, r.Value)
	}
}

// Equal reports whether both sets hold the same readings in the same order.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, name := range s.Names() {
		if other.names[i] != name || other.values[name] != s.values[name] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON object whose keys follow insertion
// order. A nil Set encodes as {}.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range s.Readings() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Name)
		if err != nil {
			return nil, err
		}
		val, err := r.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
