// Package health periodically audits the evidence store's hash chains and
// reports transitions between intact and broken.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/EvidenceLedger/internal/webhooks"
)

// Config holds audit configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

// Verifier walks the stored chains. custody.Store satisfies it.
type Verifier interface {
	Verify(ctx context.Context) error
}

// WebhookDispatchFunc is an optional callback for dispatching integrity events.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording audit results.
type MetricsRecordFunc func(intact bool)

// Status is the outcome of the most recent audit.
type Status struct {
	Intact    bool      `json:"intact"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic chain audits.
type Checker struct {
	store     Verifier
	cfg       Config
	onWebhook WebhookDispatchFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu   sync.Mutex
	last *Status
}

// New creates a new Checker.
func New(store Verifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 10 * time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = time.Minute
	}
	return &Checker{store: store, cfg: cfg, logger: logger}
}

// SetWebhookDispatch configures the webhook dispatch callback.
func (h *Checker) SetWebhookDispatch(fn WebhookDispatchFunc) {
	h.onWebhook = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the audit loop until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one audit and returns its status. Webhooks fire only when the
// result differs from the previous audit.
func (h *Checker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
	defer cancel()

	err := h.store.Verify(ctx)
	st := Status{Intact: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		st.Error = err.Error()
	}

	if h.onMetrics != nil {
		h.onMetrics(st.Intact)
	}

	h.mu.Lock()
	prev := h.last
	h.last = &st
	h.mu.Unlock()

	switch {
	case !st.Intact && (prev == nil || prev.Intact):
		h.logger.Error("health: evidence chain integrity broken", zap.Error(err))
		h.dispatch(ctx, webhooks.EventLedgerIntegrityFailed, map[string]string{"error": st.Error})
	case st.Intact && prev != nil && !prev.Intact:
		h.logger.Info("health: evidence chain integrity restored")
		h.dispatch(ctx, webhooks.EventLedgerIntegrityRestored, nil)
	case !st.Intact:
		h.logger.Warn("health: evidence chain still broken", zap.Error(err))
	}
	return st
}

// Last returns the most recent audit, or nil before the first one.
func (h *Checker) Last() *Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	cp := *h.last
	return &cp
}

func (h *Checker) dispatch(ctx context.Context, eventType string, payload map[string]string) {
	if h.onWebhook != nil {
		h.onWebhook(ctx, eventType, payload)
	}
}
