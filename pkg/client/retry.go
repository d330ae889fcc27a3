package client

import (
	"context"
	"time"

	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
	"go.uber.org/zap"
)

// RetryPolicy controls Retrying.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles after that.
	BaseDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
	// RetrySubmit allows repeating a submission after a retryable failure.
	// A submission that reached the ledger before the connection dropped is
	// then appended twice, so this is off by default.
	RetrySubmit bool
}

// Retrying wraps an API and repeats operations that failed with a retryable
// error (see IsRetryable). It holds no state between calls.
type Retrying struct {
	next   API
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ API = (*Retrying)(nil)

// NewRetrying decorates next with policy.
func NewRetrying(next API, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 200 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 5 * time.Second
	}
	return &Retrying{next: next, policy: policy, logger: zap.NewNop(), sleep: sleepCtx}
}

// SetLogger logs each retry at warn level.
func (r *Retrying) SetLogger(logger *zap.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Submit implements API. It retries only when the policy allows it.
func (r *Retrying) Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error) {
	attempts := 1
	if r.policy.RetrySubmit {
		attempts = r.policy.MaxAttempts
	}
	var ack *SubmitAck
	err := r.run(ctx, "submit", attempts, func() (err error) {
		ack, err = r.next.Submit(ctx, req)
		return err
	})
	return ack, err
}

// QueryEvidence implements API.
func (r *Retrying) QueryEvidence(ctx context.Context, evidenceID string) (*evidence.Record, error) {
	var rec *evidence.Record
	err := r.run(ctx, "queryEvidence", r.policy.MaxAttempts, func() (err error) {
		rec, err = r.next.QueryEvidence(ctx, evidenceID)
		return err
	})
	return rec, err
}

// QueryHistory implements API.
func (r *Retrying) QueryHistory(ctx context.Context, evidenceID string) (evidence.History, error) {
	var hist evidence.History
	err := r.run(ctx, "queryHistory", r.policy.MaxAttempts, func() (err error) {
		hist, err = r.next.QueryHistory(ctx, evidenceID)
		return err
	})
	return hist, err
}

// QueryAll implements API.
func (r *Retrying) QueryAll(ctx context.Context) (evidence.Collection, error) {
	var all evidence.Collection
	err := r.run(ctx, "queryAll", r.policy.MaxAttempts, func() (err error) {
		all, err = r.next.QueryAll(ctx)
		return err
	})
	return all, err
}

func (r *Retrying) run(ctx context.Context, op string, attempts int, call func() error) error {
	delay := r.policy.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = call()
		if err == nil || attempt >= attempts || !IsRetryable(err) {
			return err
		}

		r.logger.Warn("retrying ledger operation",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			// Cancelled while waiting: report the last real failure.
			return err
		}
		delay *= 2
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
