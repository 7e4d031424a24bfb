package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ToJSONB marshals a value to JSONB-compatible bytes, returning nil for a
// nil or nil-pointer input so the column stores SQL NULL.
func ToJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling to jsonb: %w", err)
	}
	return data, nil
}

// FromJSONB unmarshals JSONB data into dst, leaving dst at its zero value
// when src is nil.
func FromJSONB(src []byte, dst any) error {
	if src == nil {
		return nil
	}
	if err := json.Unmarshal(src, dst); err != nil {
		return fmt.Errorf("unmarshaling from jsonb: %w", err)
	}
	return nil
}

// FromJSONBPtr unmarshals JSONB data into a freshly allocated *T, or leaves
// *dst nil when src is nil.
func FromJSONBPtr[T any](src []byte, dst **T) error {
	if src == nil {
		*dst = nil
		return nil
	}
	var target T
	if err := json.Unmarshal(src, &target); err != nil {
		return fmt.Errorf("unmarshaling from jsonb: %w", err)
	}
	*dst = &target
	return nil
}
