package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// ingestion
	Ingested      *prometheus.CounterVec // by result: stored, duplicate, parse_error, store_error
	ValueMismatch prometheus.Counter
	IngestSec     prometheus.Histogram

	// gateway
	Decisions *prometheus.CounterVec // by operation and outcome
	Requests  *prometheus.CounterVec // by route, method and status
	Pending   prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mailorder_ingest_total"}, []string{"result"})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{Name: "mailorder_value_mismatch_total"})
	ingestSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailorder_ingest_seconds",
		Buckets: prometheus.DefBuckets,
	})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mailorder_decisions_total"}, []string{"operation", "outcome"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mailorder_http_requests_total"}, []string{"route", "method", "status"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{Name: "mailorder_pending_orders"})

	r.MustRegister(ingested, mismatch, ingestSec, decisions, requests, pending)
	return &Registry{
		reg:           r,
		Ingested:      ingested,
		ValueMismatch: mismatch,
		IngestSec:     ingestSec,
		Decisions:     decisions,
		Requests:      requests,
		Pending:       pending,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
