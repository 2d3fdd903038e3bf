package main

import "github.com/imrishuroy/go-mailorder-bridge/internal/ingest"

// Summary counts the outcome of a batch of payloads.
type Summary struct {
	Stored    int `json:"stored"`
	Duplicate int `json:"duplicate"`
	Rejected  int `json:"rejected"` // unparseable, dropped
	Failed    int `json:"failed"`   // store errors, worth retrying
}

func (s *Summary) add(res ingest.Result, err error) {
	switch {
	case err != nil && ingest.Retryable(err):
		s.Failed++
	case err != nil:
		s.Rejected++
	case res == ingest.ResultDuplicate:
		s.Duplicate++
	default:
		s.Stored++
	}
}
