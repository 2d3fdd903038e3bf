package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is a per-client request budget written as "100/minute" or
// "100 per minute". "0" or "off" disables limiting.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// Decode implements envconfig.Decoder.
func (r *RateLimit) Decode(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || value == "0" || value == "off" {
		*r = RateLimit{}
		return nil
	}

	n, unit, ok := strings.Cut(value, "/")
	if !ok {
		n, unit, ok = strings.Cut(value, " per ")
	}
	if !ok {
		return fmt.Errorf("rate limit %q: want <count>/<unit>", value)
	}
	count, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || count < 0 {
		return fmt.Errorf("rate limit %q: bad count", value)
	}
	per, ok := rateUnits[strings.TrimSuffix(strings.TrimSpace(unit), "s")]
	if !ok {
		return fmt.Errorf("rate limit %q: unknown unit %q", value, unit)
	}
	*r = RateLimit{Requests: count, Per: per}
	return nil
}

// Enabled reports whether requests are limited at all.
func (r RateLimit) Enabled() bool { return r.Requests > 0 && r.Per > 0 }

// Limit is the steady refill rate of the budget.
func (r RateLimit) Limit() rate.Limit {
	if !r.Enabled() {
		return rate.Inf
	}
	return rate.Every(r.Per / time.Duration(r.Requests))
}

// Burst lets a client spend its whole budget at once, like a fixed window.
func (r RateLimit) Burst() int { return r.Requests }
