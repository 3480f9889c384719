package adsb

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NotAvailable is the display default for missing text fields
const NotAvailable = "N/A"

// Field holds a type-erased value as delivered by the record store. A nil value
// means the field was absent.
type Field struct {
	value any
}

// NewField wraps an arbitrary value
func NewField(v any) Field {
	return Field{value: v}
}

// UnmarshalJSON implements custom JSON unmarshaling for Field
func (f *Field) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.value = nil
		return nil
	}

	// Try to unmarshal as a number first
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value = str
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		f.value = b
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into Field", data)
}

// MarshalJSON writes the underlying value
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.value)
}

// Present reports whether the field carries a usable value. Empty strings and the
// producer placeholders "-" and "N/A" count as absent.
func (f Field) Present() bool {
	switch v := f.value.(type) {
	case nil:
		return false
	case string:
		s := strings.TrimSpace(v)
		return s != "" && s != "-" && s != NotAvailable
	}
	return true
}

// StringOr returns the value as a string, or def when absent
func (f Field) StringOr(def string) string {
	if !f.Present() {
		return def
	}
	switch v := f.value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// String returns the value as a string with the "N/A" default
func (f Field) String() string {
	return f.StringOr(NotAvailable)
}

// Float64 returns the value as a float64 and whether it could be converted
func (f Field) Float64() (float64, bool) {
	if !f.Present() {
		return 0, false
	}
	var out float64
	switch v := f.value.(type) {
	case float64:
		out = v
	case float32:
		out = float64(v)
	case int:
		out = float64(v)
	case int64:
		out = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		out = parsed
	case []byte:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return 0, false
		}
		out = parsed
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

// Float64Or returns the value as a float64, or def when absent or malformed
func (f Field) Float64Or(def float64) float64 {
	if v, ok := f.Float64(); ok {
		return v
	}
	return def
}

// AltitudeOr is Float64Or for altitude fields, where receivers report "ground"
// for aircraft on the surface.
func (f Field) AltitudeOr(def float64) float64 {
	if s, ok := f.value.(string); ok && strings.EqualFold(strings.TrimSpace(s), "ground") {
		return 0
	}
	return f.Float64Or(def)
}

// BoolOr returns the value as a bool, or def when absent or not boolean-like
func (f Field) BoolOr(def bool) bool {
	switch v := f.value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return def
}

// RawRecord is one child of a store snapshot: a key plus named, type-erased fields
type RawRecord struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// Field returns the named field; absent names yield an absent Field
func (r RawRecord) Field(name string) Field {
	if r.Fields == nil {
		return Field{}
	}
	return Field{value: r.Fields[name]}
}

// Snapshot is the result of reading one partition key from the record store
type Snapshot struct {
	Exists   bool        `json:"exists"`
	Children []RawRecord `json:"children"`
}
