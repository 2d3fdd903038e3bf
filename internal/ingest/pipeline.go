// Package ingest turns raw order payloads into stored order files.
//
// A payload is parsed, checked against every bucket of the store and, when
// new, written to the "new" bucket. Redelivered payloads are reported as
// duplicates and never overwrite or re-queue an order, whatever state the
// point of sale has moved it to.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-mailorder-bridge/internal/idempotency"
	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
	"github.com/imrishuroy/go-mailorder-bridge/internal/parser"
)

// Result tells the feed what happened to a payload.
type Result string

const (
	ResultStored    Result = "stored"
	ResultDuplicate Result = "duplicate"
)

// Parser turns a raw payload into an order document.
type Parser interface {
	Parse(raw string) (*orders.Document, error)
}

// Hook runs after an order has been written. Hook failures are logged and
// never undo the write.
type Hook interface {
	Name() string
	OrderStored(ctx context.Context, doc *orders.Document, h orders.Handle) error
}

// Deps wires a Pipeline. Guard, Metrics and Hooks are optional.
type Deps struct {
	Parser  Parser
	Store   orders.Repository
	Guard   *idempotency.Store
	Metrics *metrics.Registry
	Hooks   []Hook
	Log     *logrus.Entry
}

// Pipeline ingests one payload at a time per caller.
type Pipeline struct {
	parser  Parser
	store   orders.Repository
	guard   *idempotency.Store
	metrics *metrics.Registry
	hooks   []Hook
	log     *logrus.Entry
	nowFunc func() time.Time
}

// NewPipeline returns a Pipeline. A guard without expiry is created when
// none is given.
func NewPipeline(d Deps) *Pipeline {
	guard := d.Guard
	if guard == nil {
		guard = idempotency.NewStore(0)
	}
	return &Pipeline{
		parser:  d.Parser,
		store:   d.Store,
		guard:   guard,
		metrics: d.Metrics,
		hooks:   d.Hooks,
		log:     d.Log,
		nowFunc: time.Now,
	}
}

// Ingest stores raw as a new order. Parse failures wrap parser.ErrParse and
// should not be retried; any other error is a store failure that may be.
func (p *Pipeline) Ingest(ctx context.Context, raw string) (Result, error) {
	start := p.nowFunc()
	res, err := p.ingest(ctx, raw)
	p.observe(res, err, start)
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, raw string) (Result, error) {
	doc, err := p.parser.Parse(raw)
	if err != nil {
		p.log.WithError(err).WithField("payload_bytes", len(raw)).Error("could not parse order payload")
		return "", err
	}
	id := doc.ID()
	log := p.log.WithField("order_id", id)
	if !orders.ValidOrderID(id) {
		log.Error("order id cannot be stored, dropping payload")
		return "", fmt.Errorf("%w: %w", parser.ErrParse, orders.ErrInvalidOrderID)
	}

	if !p.guard.CreateIfNotExists(id) {
		log.Info("order already ingested or in flight, skipping")
		return ResultDuplicate, nil
	}

	h, err := p.store.Find(ctx, id)
	switch {
	case err == nil:
		_ = p.guard.MarkDone(id, string(h.Bucket))
		log.WithField("bucket", h.Bucket).Info("duplicate order, already stored")
		return ResultDuplicate, nil
	case !errors.Is(err, orders.ErrNotFound):
		_ = p.guard.MarkFailed(id, err.Error())
		return "", fmt.Errorf("lookup order %s: %w", id, err)
	}

	p.checkOrderValue(doc, log)

	h, err = p.store.WriteNew(ctx, doc)
	if err != nil {
		_ = p.guard.MarkFailed(id, err.Error())
		return "", fmt.Errorf("store order %s: %w", id, err)
	}
	_ = p.guard.MarkDone(id, string(h.Bucket))
	log.WithField("file", h.Name).Info("order stored")

	for _, hook := range p.hooks {
		if err := hook.OrderStored(ctx, doc, h); err != nil {
			log.WithError(err).WithField("hook", hook.Name()).Warn("ingest hook failed")
		}
	}
	return ResultStored, nil
}

// checkOrderValue warns when the extracted total disagrees with the line
// items. The order is stored either way.
func (p *Pipeline) checkOrderValue(doc *orders.Document, log *logrus.Entry) {
	var o orders.Order
	if err := doc.Decode(&o); err != nil {
		log.WithError(err).Debug("order value check skipped")
		return
	}
	if o.OrderValue == nil || len(o.LineItems) == 0 {
		return
	}
	value, err := decimal.NewFromString(*o.OrderValue)
	if err != nil {
		return
	}
	sum := o.LineItemsTotal()
	if value.Equal(sum) {
		return
	}
	log.WithFields(logrus.Fields{
		"order_value":      value.StringFixed(2),
		"line_items_total": sum.StringFixed(2),
	}).Warn("order value differs from line items total")
	if p.metrics != nil {
		p.metrics.ValueMismatch.Inc()
	}
}

func (p *Pipeline) observe(res Result, err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	label := string(res)
	if err != nil {
		label = "store_error"
		if isParseError(err) {
			label = "parse_error"
		}
	}
	p.metrics.Ingested.WithLabelValues(label).Inc()
	p.metrics.IngestSec.Observe(p.nowFunc().Sub(start).Seconds())
}
