package retry

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	clierr "github.com/ggonzalez94/questd/internal/errors"
	"go.uber.org/zap"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 2 * time.Second
	DefaultJitter    = time.Second
)

// Policy retries an operation only while the remote looks unreachable or
// broken (no response, or a 5xx). Well-formed rejections stop immediately so
// the caller can interpret them.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	Jitter    time.Duration

	log   *zap.Logger
	sleep func(context.Context, time.Duration) error
	rand  func(int64) int64
}

func New(attempts int, baseDelay, jitter time.Duration, log *zap.Logger) *Policy {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{
		Attempts:  attempts,
		BaseDelay: baseDelay,
		Jitter:    jitter,
		log:       log,
		sleep:     Sleep,
		rand:      rand.Int63n,
	}
}

// WithSleeper replaces the pacing function, mostly for tests.
func (p *Policy) WithSleeper(sleep func(context.Context, time.Duration) error) *Policy {
	clone := *p
	clone.sleep = sleep
	return &clone
}

// WithLogger returns a copy that logs retries to log.
func (p *Policy) WithLogger(log *zap.Logger) *Policy {
	clone := *p
	clone.log = log
	return &clone
}

// Retryable reports whether err warrants another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	status := clierr.StatusOf(err)
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return false
	case status == http.StatusTooManyRequests:
		return false
	case status == http.StatusBadRequest:
		return false
	case status == 0, status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func (p *Policy) delay() time.Duration {
	d := p.BaseDelay
	if p.Jitter > 0 {
		d += time.Duration(p.rand(int64(p.Jitter)))
	}
	return d
}

// Do runs op up to p.Attempts times and returns the last error when every
// attempt failed.
func Do[T any](ctx context.Context, p *Policy, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == p.Attempts {
			break
		}
		if ctx.Err() != nil {
			break
		}
		p.log.Debug("retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Int("max", p.Attempts),
			zap.Error(err),
		)
		if err := p.sleep(ctx, p.delay()); err != nil {
			break
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result.
func (p *Policy) Run(ctx context.Context, name string, op func(context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
