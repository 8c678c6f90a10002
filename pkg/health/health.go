// Package health serves /livez and /readyz for the storefront API.
//
// Probes run in background goroutines. A probe turns unhealthy after a run of
// consecutive failures and healthy again after a run of successes, so a
// single slow database ping does not flip readiness.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

const (
	defaultFailAfter = 3
	defaultPassAfter = 1
)

// Option customizes a probe.
type Option func(*probe)

// WithThresholds sets how many consecutive failures mark a probe unhealthy
// and how many successes restore it. Non-positive values keep the defaults.
func WithThresholds(failAfter, passAfter int) Option {
	return func(p *probe) {
		if failAfter > 0 {
			p.failAfter = failAfter
		}
		if passAfter > 0 {
			p.passAfter = passAfter
		}
	}
}

// probe is one registered check. fails and passes are owned by the probe's
// loop goroutine; healthy and lastErr are read by the endpoints.
type probe struct {
	name      string
	kind      Kind
	timeout   time.Duration
	check     CheckFunc
	failAfter int
	passAfter int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails, passes int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	p.observe(p.check(ctx))
}

func (p *probe) observe(err error) {
	p.lastErr.Store(&err)
	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= p.passAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// failure returns the message to report for an unhealthy probe.
func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if err := p.lastErr.Load(); err != nil && *err != nil {
		return (*err).Error(), true
	}
	return "check is unhealthy", true
}

// Health holds the registered probes and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a probe. Probes start healthy and must be added before Start.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	p := &probe{
		name:      name,
		kind:      kind,
		timeout:   timeout,
		check:     check,
		failAfter: defaultFailAfter,
		passAfter: defaultPassAfter,
	}
	for _, o := range opts {
		o(p)
	}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a probe reported by /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	h.Add(Liveness, name, timeout, check, opts...)
}

// AddReadinessCheck registers a probe reported by /readyz, e.g. the database
// or Redis ping.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	h.Add(Readiness, name, timeout, check, opts...)
}

// Start runs every probe immediately and then every interval until Stop or
// ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the probe goroutines. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness flag. It is cleared first thing on
// shutdown so load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual flag combined with every readiness probe.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range h.probes {
		if p.kind != kind {
			continue
		}
		if msg, failed := p.failure(); failed {
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez: 200 when every liveness probe passes, 503 with
// the failing probes otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz. A service not marked ready is reported under
// the "_readiness" key.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// writeResponse writes the API envelope with a status field and, on failure,
// the failing checks in name order.
func writeResponse(w http.ResponseWriter, failures map[string]string) {
	healthy := len(failures) == 0

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(healthy) })
		if healthy {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range slices.Sorted(maps.Keys(failures)) {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
