package animal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tri is a three-valued flag. The zero value is TriUnknown so an absent
// field can never be mistaken for an explicit false.
type Tri uint8

// Tri values.
const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

// TriFromBool maps a concrete boolean.
func TriFromBool(b bool) Tri {
	if b {
		return TriTrue
	}
	return TriFalse
}

// TriFromPtr maps a nullable boolean; nil is unknown.
func TriFromPtr(b *bool) Tri {
	if b == nil {
		return TriUnknown
	}
	return TriFromBool(*b)
}

// Ptr returns the nullable boolean form used by stores.
func (t Tri) Ptr() *bool {
	switch t {
	case TriTrue:
		v := true
		return &v
	case TriFalse:
		v := false
		return &v
	default:
		return nil
	}
}

// IsTrue reports an explicit true.
func (t Tri) IsTrue() bool { return t == TriTrue }

// IsFalse reports an explicit false.
func (t Tri) IsFalse() bool { return t == TriFalse }

func (t Tri) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes unknown as null.
func (t Tri) MarshalJSON() ([]byte, error) {
	switch t {
	case TriTrue:
		return []byte("true"), nil
	case TriFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null.
func (t *Tri) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = TriUnknown
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("decode tri-state: %w", err)
	}
	*t = TriFromBool(b)
	return nil
}
