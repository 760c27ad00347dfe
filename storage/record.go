package storage

import (
	"encoding/json"
	"fmt"
)

// payload is either inline or overflowed
type payload interface {
	isPayload()
}

// inline is a value stored directly in the record
type inline []byte

// overflowed is a reference to a blob in the overflow store
type overflowed string

func (inline) isPayload()     {}
func (overflowed) isPayload() {}

// record is what the engine persists for every key
type record struct {
	payload  payload
	modified int64
	size     int
}

// recordJSON is the persisted form of a record
type recordJSON struct {
	Overflow  bool   `json:"overflow"`
	Value     []byte `json:"value,omitempty"`
	Reference string `json:"reference,omitempty"`
	Modified  int64  `json:"modified"`
	Size      int    `json:"size"`
}

// reference returns the blob reference of an overflowed record
func (r record) reference() (string, bool) {
	ref, ok := r.payload.(overflowed)

	return string(ref), ok
}

func (r record) marshal() ([]byte, error) {
	encoded := recordJSON{Modified: r.modified, Size: r.size}

	switch p := r.payload.(type) {
	case inline:
		encoded.Value = p
	case overflowed:
		encoded.Overflow = true
		encoded.Reference = string(p)
	default:
		return nil, fmt.Errorf("unknown payload type %T", r.payload)
	}

	return json.Marshal(encoded)
}

func unmarshalRecord(data []byte) (record, error) {
	var decoded recordJSON

	if err := json.Unmarshal(data, &decoded); err != nil {
		return record{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	r := record{modified: decoded.Modified, size: decoded.Size}

	switch {
	case decoded.Overflow && decoded.Reference != "" && decoded.Value == nil:
		r.payload = overflowed(decoded.Reference)
	case !decoded.Overflow && decoded.Reference == "":
		r.payload = inline(decoded.Value)
	default:
		return record{}, fmt.Errorf("%w: overflow flag disagrees with payload", ErrMalformed)
	}

	if r.size < 0 {
		return record{}, fmt.Errorf("%w: negative size", ErrMalformed)
	}

	return r, nil
}
