package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecisionRequest is the payload for POST /orders. Operation is only checked
// once the order's bucket is known.
type DecisionRequest struct {
	OrderID         string   `json:"order_id" validate:"required,max=128,order_id"`
	Operation       string   `json:"operation" validate:"max=32"`
	DeliveryMinutes *Minutes `json:"delivery_minutes,omitempty" validate:"omitempty,min=0,max=1440"`
}

// Normalize trims the id and upper-cases the operation token.
func (r *DecisionRequest) Normalize() {
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.Operation = strings.ToUpper(strings.TrimSpace(r.Operation))
}

// Minutes accepts a JSON number or a numeric string, since point of sale
// clients send both.
type Minutes int

func (m *Minutes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("delivery_minutes must be a whole number, got %s", data)
	}
	*m = Minutes(n)
	return nil
}

// IntPtr returns the value as *int, nil when m is nil.
func (m *Minutes) IntPtr() *int {
	if m == nil {
		return nil
	}
	n := int(*m)
	return &n
}
