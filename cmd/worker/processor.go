package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-mailorder-bridge/internal/ingest"
)

// Processor feeds raw payloads to the ingestion pipeline.
type Processor struct {
	pipeline *ingest.Pipeline
	log      *logrus.Entry
}

// NewProcessor creates a new worker processor.
func NewProcessor(p *ingest.Pipeline, log *logrus.Entry) *Processor {
	return &Processor{pipeline: p, log: log}
}

// HandleMessage ingests one queue message. Only store failures are returned,
// so that the message stays on the queue and is redelivered; a payload that
// does not parse never will and is dropped.
func (p *Processor) HandleMessage(ctx context.Context, body string) error {
	res, err := p.pipeline.Ingest(ctx, body)
	if err != nil {
		if ingest.Retryable(err) {
			return err
		}
		p.log.WithError(err).Warn("dropping unparseable message")
		return nil
	}
	p.log.WithField("result", res).Debug("message ingested")
	return nil
}

// IngestFiles ingests each file as one payload. "-" reads stdin.
func (p *Processor) IngestFiles(ctx context.Context, paths []string, stdin io.Reader) (Summary, error) {
	var sum Summary
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		raw, err := readPayload(path, stdin)
		if err != nil {
			return sum, err
		}
		res, err := p.pipeline.Ingest(ctx, raw)
		sum.add(res, err)

		entry := p.log.WithField("file", path)
		if err != nil {
			entry.WithError(err).Warn("payload not ingested")
			continue
		}
		entry.WithField("result", res).Info("payload ingested")
	}
	return sum, nil
}

func readPayload(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	return string(b), nil
}
