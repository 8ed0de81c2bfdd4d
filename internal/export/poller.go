package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/youtrack"
)

const (
	DefaultMaxAttempts  = 10
	DefaultPollingDelay = 2 * time.Second
)

// ErrCountNotReady means the server kept answering "still computing" for
// every polling attempt.
var ErrCountNotReady = errors.New("API did not return a valid issues count")

// Counter is the count endpoint the poller drives.
type Counter interface {
	IssueCount(ctx context.Context, project youtrack.Project, sel youtrack.Selection) (*int, error)
}

// Poller asks for a project's issue count until the server returns a
// definitive value.
type Poller struct {
	counter     Counter
	maxAttempts int
	delay       time.Duration
	sleep       func(context.Context, time.Duration) error
}

// NewPoller builds a poller. Non-positive attempts fall back to
// DefaultMaxAttempts; a negative delay to DefaultPollingDelay.
func NewPoller(counter Counter, maxAttempts int, delay time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = DefaultPollingDelay
	}
	return &Poller{counter: counter, maxAttempts: maxAttempts, delay: delay, sleep: sleepContext}
}

// Poll returns the issue count. A null count is zero. Each "not ready"
// answer consumes an attempt and calls onAttempt before the next try.
// Request errors are not retried.
func (p *Poller) Poll(ctx context.Context, project youtrack.Project, sel youtrack.Selection, onAttempt func(attempt, max int)) (int, error) {
	log := debug.With(zap.String("project", project.Name))
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		count, err := p.counter.IssueCount(ctx, project, sel)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeExport, "Failed to fetch issues count", err)
		}
		if count == nil {
			log.Debug("issue count is null, treating as zero", zap.Int("attempt", attempt))
			return 0, nil
		}
		if *count > youtrack.CountNotReady {
			log.Debug("issue count ready", zap.Int("attempt", attempt), zap.Int("count", *count))
			return *count, nil
		}

		log.Debug("issue count not ready", zap.Int("attempt", attempt), zap.Int("max", p.maxAttempts))
		if onAttempt != nil {
			onAttempt(attempt, p.maxAttempts)
		}
		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, p.delay); err != nil {
			return 0, apperrors.New(apperrors.CodeCancelled, "polling cancelled", err)
		}
	}
	return 0, apperrors.New(apperrors.CodeExport,
		fmt.Sprintf("Failed to fetch issues count: %v after %d attempts", ErrCountNotReady, p.maxAttempts),
		ErrCountNotReady)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
