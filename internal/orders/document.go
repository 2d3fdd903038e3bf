package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingOrderID is returned for records without an internal_order_id.
	ErrMissingOrderID = errors.New("order record has no internal_order_id")
	// ErrMalformedRecord is returned when a stored file is not an order record.
	ErrMalformedRecord = errors.New("malformed order record")
)

// Document is an order record kept as raw JSON so that key order (and any
// fields this service does not know about) survive storage untouched.
// Only the id and status are decoded, and only when the document is built.
type Document struct {
	raw  json.RawMessage
	head documentHead
}

type documentHead struct {
	ID     string `json:"internal_order_id"`
	Status Status `json:"status"`
}

// NewDocument serializes a canonical order.
func NewDocument(o *Order) (*Document, error) {
	raw, err := marshal(o, "")
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	return ParseDocument(raw)
}

// ParseDocument wraps a raw JSON object. It fails if the object has no
// internal_order_id; every other field is passed through unchecked.
func ParseDocument(raw []byte) (*Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedRecord)
	}
	var head documentHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if head.ID == "" {
		return nil, ErrMissingOrderID
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return &Document{raw: cp, head: head}, nil
}

func (d *Document) ID() string { return d.head.ID }

func (d *Document) Status() Status { return d.head.Status }

// Raw returns the record bytes exactly as received.
func (d *Document) Raw() json.RawMessage { return d.raw }

// Decode unmarshals the record into v, typically an *Order.
func (d *Document) Decode(v interface{}) error {
	return json.Unmarshal(d.raw, v)
}

// MarshalJSON emits the stored bytes so key order is preserved.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.raw, nil
}

// fileRecord is the on-disk shape of an order file.
type fileRecord struct {
	Order *Document `json:"order"`
}

type rawFileRecord struct {
	Order json.RawMessage `json:"order"`
}

func encodeFile(d *Document) ([]byte, error) {
	b, err := marshal(fileRecord{Order: d}, "    ")
	if err != nil {
		return nil, fmt.Errorf("encode order file: %w", err)
	}
	return append(b, '\n'), nil
}

// marshal encodes v without HTML escaping, so text such as "Pizza & Bere"
// is stored exactly as received.
func marshal(v interface{}, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func decodeFile(data []byte) (*Document, error) {
	var rec rawFileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(rec.Order) == 0 || string(rec.Order) == "null" {
		return nil, fmt.Errorf("%w: missing order key", ErrMalformedRecord)
	}
	return ParseDocument(rec.Order)
}
