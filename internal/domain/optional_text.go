package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TextState distinguishes the three meanings an optional context field can carry.
type TextState int

const (
	// TextAbsent means the value was not supplied: unchanged code, or output
	// that is stale or was never produced.
	TextAbsent TextState = iota
	// TextEmpty means the value was supplied and is the empty string, e.g. a
	// program that ran and printed nothing.
	TextEmpty
	// TextNonEmpty means the value was supplied and has content.
	TextNonEmpty
)

func (s TextState) String() string {
	switch s {
	case TextAbsent:
		return "absent"
	case TextEmpty:
		return "empty"
	case TextNonEmpty:
		return "non_empty"
	default:
		return fmt.Sprintf("TextState(%d)", int(s))
	}
}

// OptionalText is a string that may be absent. An absent value and an empty
// string are never conflated: JSON null and SQL NULL map to absent, "" maps to
// empty.
type OptionalText struct {
	value   string
	present bool
}

// Absent returns an OptionalText with no value.
func Absent() OptionalText {
	return OptionalText{}
}

// Text returns a present OptionalText holding s, which may be empty.
func Text(s string) OptionalText {
	return OptionalText{value: s, present: true}
}

// TextPtr converts a nullable string pointer.
func TextPtr(s *string) OptionalText {
	if s == nil {
		return Absent()
	}
	return Text(*s)
}

// Present reports whether a value was supplied.
func (o OptionalText) Present() bool {
	return o.present
}

// Get returns the string and whether it was present.
func (o OptionalText) Get() (string, bool) {
	return o.value, o.present
}

// String returns the value, or "" when absent. Callers that must tell the two
// apart use Get or State.
func (o OptionalText) String() string {
	return o.value
}

// State classifies the value.
func (o OptionalText) State() TextState {
	switch {
	case !o.present:
		return TextAbsent
	case o.value == "":
		return TextEmpty
	default:
		return TextNonEmpty
	}
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (o OptionalText) Ptr() *string {
	if !o.present {
		return nil
	}
	v := o.value
	return &v
}

// MarshalJSON encodes absent as null.
func (o OptionalText) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absent and any JSON string as present.
func (o *OptionalText) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Absent()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("optional text must be a string or null: %w", err)
	}
	*o = Text(s)
	return nil
}

// Scan implements sql.Scanner.
func (o *OptionalText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*o = Absent()
	case string:
		*o = Text(v)
	case []byte:
		*o = Text(string(v))
	default:
		return fmt.Errorf("cannot scan %T into OptionalText", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (o OptionalText) Value() (driver.Value, error) {
	if !o.present {
		return nil, nil
	}
	return o.value, nil
}
