// Package gateway implements the polling and decision operations used by
// the point of sale on top of the order store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

var (
	// ErrEmpty is returned by NextPending when no order is waiting.
	ErrEmpty = errors.New("no pending orders")
	// ErrInvalidOperation is returned for a decision other than CONFIRM or
	// CANCEL on an order that is still new.
	ErrInvalidOperation = errors.New("operation must be CONFIRM or CANCEL")
)

// Operation is a point of sale decision.
type Operation string

const (
	OpConfirm Operation = "CONFIRM"
	OpCancel  Operation = "CANCEL"
)

// ParseOperation normalises a decision token. The Romanian tokens used by
// older point of sale builds are accepted as aliases.
func ParseOperation(s string) (Operation, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CONFIRM", "CONFIRMA":
		return OpConfirm, true
	case "CANCEL", "ANULEAZA":
		return OpCancel, true
	}
	return "", false
}

func (op Operation) destination() orders.Bucket {
	if op == OpConfirm {
		return orders.BucketProcessed
	}
	return orders.BucketCancelled
}

// DecisionInput is a decision submitted by the point of sale.
type DecisionInput struct {
	OrderID         string
	Operation       string
	DeliveryMinutes *int
}

// DecisionOutcome describes what ApplyDecision did.
type DecisionOutcome struct {
	OrderID string
	// Acknowledged is set when the order had already left the new bucket;
	// nothing was moved and Bucket is where it was found.
	Acknowledged    bool
	Operation       Operation
	DeliveryMinutes *int
	Bucket          orders.Bucket
	Message         string
}

// Stats holds per bucket order counts.
type Stats struct {
	New       int `json:"new"`
	Processed int `json:"processed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

type Service struct {
	store   orders.Repository
	metrics *metrics.Registry
	log     *logrus.Entry
}

// NewService returns a Service. metrics may be nil.
func NewService(store orders.Repository, m *metrics.Registry, log *logrus.Entry) *Service {
	return &Service{store: store, metrics: m, log: log}
}

// NextPending returns the oldest order still waiting for a decision. It has
// no side effects: repeated calls return the same order until it moves.
func (s *Service) NextPending(ctx context.Context) (*orders.Document, error) {
	for doc, err := range s.store.Pending(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list pending orders: %w", err)
		}
		s.log.WithField("order_id", doc.ID()).Info("returning pending order")
		return doc, nil
	}
	return nil, ErrEmpty
}

// ApplyDecision confirms or cancels a new order. Orders that were already
// handled are acknowledged without touching the store, so the point of sale
// may safely resubmit a decision.
func (s *Service) ApplyDecision(ctx context.Context, in DecisionInput) (DecisionOutcome, error) {
	log := s.log.WithField("order_id", in.OrderID)

	h, err := s.store.Find(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			log.Warn("decision for unknown order")
		}
		return DecisionOutcome{}, err
	}

	if h.Bucket != orders.BucketNew {
		log.WithField("bucket", h.Bucket).Info("order already handled, acknowledging")
		op, _ := ParseOperation(in.Operation)
		s.countDecision(op, "acknowledged")
		return DecisionOutcome{
			OrderID:      in.OrderID,
			Acknowledged: true,
			Bucket:       h.Bucket,
			Message:      fmt.Sprintf("Order #%s already processed. Status update received.", in.OrderID),
		}, nil
	}

	op, ok := ParseOperation(in.Operation)
	if !ok {
		return DecisionOutcome{}, fmt.Errorf("%w: got %q", ErrInvalidOperation, in.Operation)
	}

	moved, err := s.store.Move(ctx, in.OrderID, orders.BucketNew, op.destination())
	if err != nil {
		if errors.Is(err, orders.ErrRaceLost) {
			log.WithError(err).Info("order moved by another writer")
			s.countDecision(op, "race_lost")
		} else {
			log.WithError(err).Error("could not move order")
			s.countDecision(op, "error")
		}
		return DecisionOutcome{}, err
	}

	out := DecisionOutcome{
		OrderID:   in.OrderID,
		Operation: op,
		Bucket:    moved.Bucket,
	}
	if op == OpConfirm {
		out.DeliveryMinutes = in.DeliveryMinutes
		out.Message = fmt.Sprintf("Order #%s confirmed", in.OrderID)
		if in.DeliveryMinutes != nil {
			out.Message += fmt.Sprintf(" with delivery time: %d minutes", *in.DeliveryMinutes)
		}
	} else {
		out.Message = fmt.Sprintf("Order #%s cancelled", in.OrderID)
	}
	log.WithField("moved_to", moved.Bucket).Info(out.Message)
	s.countDecision(op, "moved")
	return out, nil
}

// Lookup returns an order from whichever bucket holds it. An order moved
// between locating and reading it is located again once.
func (s *Service) Lookup(ctx context.Context, orderID string) (*orders.Document, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var h orders.Handle
		h, err = s.store.Find(ctx, orderID)
		if err != nil {
			return nil, err
		}
		var doc *orders.Document
		doc, err = s.store.Read(ctx, h)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
	}
	return nil, err
}

// Stats counts the orders in every bucket.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, b := range orders.Buckets {
		n, err := s.store.Count(ctx, b)
		if err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", b, err)
		}
		switch b {
		case orders.BucketNew:
			st.New = n
		case orders.BucketProcessed:
			st.Processed = n
		case orders.BucketCancelled:
			st.Cancelled = n
		}
		st.Total += n
	}
	if s.metrics != nil {
		s.metrics.Pending.Set(float64(st.New))
	}
	return st, nil
}

func (s *Service) countDecision(op Operation, outcome string) {
	if s.metrics == nil {
		return
	}
	label := string(op)
	if label == "" {
		label = "none"
	}
	s.metrics.Decisions.WithLabelValues(label, outcome).Inc()
}
