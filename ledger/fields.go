package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields is a JSON object that preserves key insertion order across
// decode/encode round trips. Ledger files originate from spreadsheet imports
// whose row and column order is meaningful to downstream consumers, so the
// store must never reorder keys on rewrite.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields creates an empty ordered object
func NewFields() *Fields {
	return &Fields{values: make(map[string]any)}
}

// Len returns the number of keys
func (f *Fields) Len() int {
	return len(f.keys)
}

// Keys returns the keys in insertion order. The returned slice is shared;
// callers must not mutate it.
func (f *Fields) Keys() []string {
	return f.keys
}

// Get returns the value for key and whether the key is defined
func (f *Fields) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Has reports whether key is defined, regardless of its value
func (f *Fields) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

// GetString returns the value for key if it is a string, or "" otherwise
func (f *Fields) GetString(key string) string {
	if s, ok := f.values[key].(string); ok {
		return s
	}
	return ""
}

// Set assigns key to value, appending the key if it is new
func (f *Fields) Set(key string, value any) {
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// UnmarshalJSON implements json.Unmarshaler, recording key order
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	obj, ok := val.(*Fields)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", val)
	}
	*f = *obj
	return nil
}

// MarshalJSON implements json.Marshaler, emitting keys in insertion order
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyData, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyData)
		buf.WriteByte(':')
		valData, err := json.Marshal(f.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshaling value for key %q: %w", key, err)
		}
		buf.Write(valData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeValue reads one JSON value from the decoder. Objects become *Fields
// so that nesting preserves order too; scalars keep their decoded Go type
// (string, json.Number, bool or nil).
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := NewFields()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		// Consume the closing brace
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}
