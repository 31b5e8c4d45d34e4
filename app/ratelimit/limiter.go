// Package ratelimit provides in-process admission control keyed by identifier
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultRetention is how long request timestamps are kept by Cleanup for status queries
const DefaultRetention = 5 * time.Minute

// Config is a limiter policy applied per call site
type Config struct {
	MaxRequests int
	Window      time.Duration
	// KeyGenerator namespaces identifiers so several policies can share one Limiter
	KeyGenerator           func(identifier string) string
	SkipSuccessfulRequests bool
	SkipFailedRequests     bool
}

// DefaultConfig is used for zero-valued fields of a Config
func DefaultConfig() Config {
	return Config{MaxRequests: 10, Window: time.Minute}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

func (c Config) key(identifier string) string {
	if c.KeyGenerator != nil {
		return c.KeyGenerator(identifier)
	}
	return identifier
}

// Decision is the result of an admission check
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// Status describes current usage of a key without recording anything
type Status struct {
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// Stats summarises every tracked key
type Stats struct {
	TotalIdentifiers             int     `json:"total_identifiers"`
	TotalRequests                int     `json:"total_requests"`
	AverageRequestsPerIdentifier float64 `json:"average_requests_per_identifier"`
}

type entry struct {
	count     int
	resetTime time.Time
	requests  []time.Time
	// window of the policy that last touched the entry; Cleanup never trims inside it
	window time.Duration
}

// slide drops requests older than window and resyncs count
func (e *entry) slide(now time.Time, window time.Duration) {
	kept := e.requests[:0]
	for _, t := range e.requests {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	e.requests = kept
	e.count = len(kept)
}

// Limiter combines a sliding window over request timestamps with a fixed reset marker.
// It is safe for concurrent use; every read-modify-write of an entry happens under mu.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	now       func() time.Time
	retention time.Duration
}

type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithRetention changes how long Cleanup keeps request timestamps
func WithRetention(d time.Duration) Option {
	return func(l *Limiter) { l.retention = d }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries:   make(map[string]*entry),
		now:       time.Now,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanMakeRequest admits and records a request when the key is under its limit.
// The sliding filter runs first, then the fixed-window reset. The reset re-arms
// resetTime only; timestamps that survived the filter still count so the trailing
// window never admits more than MaxRequests.
func (l *Limiter) CanMakeRequest(identifier string, cfg Config) Decision {
	cfg = cfg.withDefaults()
	key := cfg.key(identifier)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{resetTime: now.Add(cfg.Window)}
		l.entries[key] = e
	}
	e.window = cfg.Window

	e.slide(now, cfg.Window)

	if !now.Before(e.resetTime) {
		e.resetTime = now.Add(cfg.Window)
	}

	if e.count >= cfg.MaxRequests {
		return Decision{Allowed: false, Remaining: 0, ResetTime: e.resetTime}
	}

	e.requests = append(e.requests, now)
	e.count++

	return Decision{Allowed: true, Remaining: cfg.MaxRequests - e.count, ResetTime: e.resetTime}
}

// RecordRequest tracks an outcome separately from admission, honouring the skip flags
func (l *Limiter) RecordRequest(identifier string, success bool, cfg Config) {
	cfg = cfg.withDefaults()
	if success && cfg.SkipSuccessfulRequests {
		return
	}
	if !success && cfg.SkipFailedRequests {
		return
	}

	key := cfg.key(identifier)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		l.entries[key] = &entry{count: 1, resetTime: now.Add(cfg.Window), requests: []time.Time{now}, window: cfg.Window}
		return
	}
	e.window = cfg.Window
	e.requests = append(e.requests, now)
	e.count++
}

// Status reports usage of the key, applying the sliding filter
func (l *Limiter) Status(identifier string, cfg Config) Status {
	cfg = cfg.withDefaults()
	key := cfg.key(identifier)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return Status{Count: 0, Remaining: cfg.MaxRequests, ResetTime: now.Add(cfg.Window)}
	}

	e.slide(now, cfg.Window)

	return Status{Count: e.count, Remaining: max(0, cfg.MaxRequests-e.count), ResetTime: e.resetTime}
}

// Clear forgets everything recorded for the key
func (l *Limiter) Clear(identifier string, cfg Config) {
	key := cfg.key(identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
}

// Cleanup drops expired entries with no recent requests and returns how many were removed.
// Timestamps are kept for the longer of the entry's window and the retention.
func (l *Limiter) Cleanup() int {
	now := l.now()
	cleaned := 0

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		e.slide(now, max(e.window, l.retention))
		if len(e.requests) == 0 && !now.Before(e.resetTime) {
			delete(l.entries, key)
			cleaned++
		}
	}

	return cleaned
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{TotalIdentifiers: len(l.entries)}
	for _, e := range l.entries {
		s.TotalRequests += e.count
	}
	if s.TotalIdentifiers > 0 {
		s.AverageRequestsPerIdentifier = float64(s.TotalRequests) / float64(s.TotalIdentifiers)
	}
	return s
}

// StartJanitor runs Cleanup every interval until the returned stop function is called
func (l *Limiter) StartJanitor(parent context.Context, every time.Duration, onClean func(int)) func() {
	ctx, cancel := context.WithCancel(parent)
	if every <= 0 {
		return cancel
	}

	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.Cleanup(); n > 0 && onClean != nil {
					onClean(n)
				}
			}
		}
	}()

	return cancel
}
