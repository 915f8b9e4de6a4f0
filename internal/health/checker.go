// Package health runs periodic readiness probes against the ledger's
// dependencies and reports an aggregate status.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe statuses.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe is one named check. Check returns nil when the dependency is fine.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ProbeStatus is the last known state of a probe.
type ProbeStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// DegradedFunc is an optional callback fired when a probe crosses the fail
// threshold.
type DegradedFunc func(ctx context.Context, probe string, err error)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(probe string, success bool)

// Checker runs probes on an interval and remembers their outcome.
type Checker struct {
	probes     []Probe
	mu         sync.Mutex
	status     map[string]*ProbeStatus
	cfg        Config
	onDegraded DegradedFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a new Checker.
func New(probes []Probe, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	status := make(map[string]*ProbeStatus, len(probes))
	for _, p := range probes {
		status[p.Name] = &ProbeStatus{Name: p.Name, Status: StatusUnknown}
	}
	return &Checker{
		probes: probes,
		status: status,
		cfg:    cfg,
		logger: logger,
	}
}

// SetDegradedHook configures the degraded callback.
func (h *Checker) SetDegradedHook(fn DegradedFunc) {
	h.onDegraded = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the probes immediately and then on every tick until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe once with bounded concurrency.
func (h *Checker) CheckAll(ctx context.Context) {
	sem := make(chan struct{}, 4)
	var wg sync.WaitGroup

	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Check(probeCtx)
			cancel()
			h.record(ctx, p.Name, err)
		}(p)
	}

	wg.Wait()
}

func (h *Checker) record(ctx context.Context, name string, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(name, success)
	}

	h.mu.Lock()
	st := h.status[name]
	prevCount := st.FailCount
	st.CheckedAt = time.Now().UTC()
	if success {
		st.FailCount = 0
		st.LastError = ""
		st.Status = StatusHealthy
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Status = StatusDegraded
		} else if st.Status == StatusUnknown {
			st.Status = StatusHealthy
		}
	}
	count := st.FailCount
	h.mu.Unlock()

	switch {
	case success && prevCount >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("probe", name))
	case !success && count == h.cfg.FailThreshold:
		// Transition: healthy to degraded (exactly at threshold)
		h.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		if h.onDegraded != nil {
			h.onDegraded(ctx, name, err)
		}
	case !success:
		h.logger.Debug("health: probe failed", zap.String("probe", name), zap.Error(err))
	}
}

// Status reports whether no probe is degraded, plus a snapshot of every probe
// in registration order.
func (h *Checker) Status() (bool, []ProbeStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ready := true
	out := make([]ProbeStatus, 0, len(h.probes))
	for _, p := range h.probes {
		st := *h.status[p.Name]
		if st.Status == StatusDegraded {
			ready = false
		}
		out = append(out, st)
	}
	return ready, out
}
