package orders

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle tag carried inside the order record.
type Status string

// Order statuses
const (
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusCancelled  Status = "cancelled"
)

// PaymentMethod is inferred from the free-text payment cell of the email.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// Defaults applied to every order built from the legacy markup.
const (
	DefaultCurrency  = "RON"
	DefaultOrderType = "delivery"
	DefaultUnitPrice = "0.00"
	TimestampLayout  = "2006-01-02 15:04:05"
)

// Order is the canonical record handed to the POS integration.
// Field order here is the serialized key order and must not be rearranged.
type Order struct {
	InternalOrderID string            `json:"internal_order_id"`
	CurrencySymbol  string            `json:"currency_symbol"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerPhone   *string           `json:"customer_phone"`
	CustomerName    *string           `json:"customer_name"`
	Neighborhood    string            `json:"neighborhood"`
	OrderType       string            `json:"order_type"`
	DeliveryAddress *string           `json:"delivery_address"`
	OrderValue      *string           `json:"order_value"`
	Discounts       []json.RawMessage `json:"discounts"`
	Status          Status            `json:"status"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	Notes           string            `json:"notes"`
	OrderTimestamp  string            `json:"order_timestamp"`
	LineItems       []Product         `json:"line_items"`
}

// Product is one line of an order. The product name doubles as its id.
type Product struct {
	ProductID     string            `json:"product_id"`
	ProductName   string            `json:"product_name"`
	Quantity      int               `json:"quantity"`
	UnitPrice     string            `json:"unit_price"`
	ParentOrderID string            `json:"parent_order_id"`
	Notes         string            `json:"notes"`
	Extras        []json.RawMessage `json:"extras"`
}

// NewOrder returns an order with every default filled in.
func NewOrder(id string) *Order {
	return &Order{
		InternalOrderID: id,
		CurrencySymbol:  DefaultCurrency,
		OrderType:       DefaultOrderType,
		Discounts:       []json.RawMessage{},
		Status:          StatusProcessing,
		PaymentMethod:   PaymentCash,
		LineItems:       []Product{},
	}
}

// NewProduct returns a line item attached to orderID.
func NewProduct(orderID, name string, quantity int, unitPrice string) Product {
	if unitPrice == "" {
		unitPrice = DefaultUnitPrice
	}
	return Product{
		ProductID:     name,
		ProductName:   name,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		ParentOrderID: orderID,
		Extras:        []json.RawMessage{},
	}
}

// LineItemsTotal sums quantity * unit price over all line items.
// Unparseable prices count as zero.
func (o *Order) LineItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.LineItems {
		price, err := decimal.NewFromString(p.UnitPrice)
		if err != nil {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	return total
}
