// Package parser turns forwarded order emails into canonical order records.
//
// Two payload shapes are accepted, tried in this order:
//
//  1. a JSON envelope {"orders":[{"order":{...}}, ...]} whose first order is
//     returned untouched;
//  2. the legacy HTML rendering of the order email, extracted field by field.
//
// Both heuristics are tuned to a single upstream template. A template change
// will usually yield empty or wrong fields rather than a parse error.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

// ErrParse marks a payload that cannot be turned into an order. Retrying the
// same payload will not help.
var ErrParse = errors.New("unparseable order payload")

// Parser extracts orders from raw payloads.
type Parser struct {
	log     *logrus.Entry
	nowFunc func() time.Time
}

// New returns a Parser that logs through log.
func New(log *logrus.Entry) *Parser {
	return &Parser{
		log:     log,
		nowFunc: time.Now,
	}
}

// Parse converts a raw payload into an order document. Any failure,
// including a panic inside the extraction code, is reported as ErrParse.
func (p *Parser) Parse(raw string) (doc *orders.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("order extraction panicked")
			doc, err = nil, fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	if doc, ok, err := p.parseEnvelope(raw); ok {
		return doc, err
	}

	order, err := p.ParseHTML(raw)
	if err != nil {
		return nil, err
	}
	doc, err = orders.NewDocument(order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return doc, nil
}

type envelope struct {
	Orders []json.RawMessage `json:"orders"`
}

type envelopeEntry struct {
	Order json.RawMessage `json:"order"`
}

// parseEnvelope reports ok=false when raw is not an envelope, in which case
// the caller falls back to the HTML extractor.
func (p *Parser) parseEnvelope(raw string) (*orders.Document, bool, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 || data[0] != '{' {
		return nil, false, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Orders) == 0 {
		p.log.Debug("payload is not an order envelope, trying html")
		return nil, false, nil
	}
	var entry envelopeEntry
	if err := json.Unmarshal(env.Orders[0], &entry); err != nil || len(entry.Order) == 0 {
		p.log.Debug("envelope entry has no order, trying html")
		return nil, false, nil
	}

	doc, err := orders.ParseDocument(entry.Order)
	switch {
	case errors.Is(err, orders.ErrMissingOrderID):
		return nil, true, fmt.Errorf("%w: envelope order has no internal_order_id", ErrParse)
	case err != nil:
		p.log.WithError(err).Debug("envelope order is not an object, trying html")
		return nil, false, nil
	}
	p.log.WithField("order_id", doc.ID()).Info("order taken from json envelope")
	return doc, true, nil
}
