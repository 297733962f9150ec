// Package sync replays queued tip intents once connectivity returns.
package sync

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/hachizeus/ttip-backend/client/api"
	"github.com/hachizeus/ttip-backend/client/queue"
)

// Initiator submits one intent to the backend. *api.Client implements it.
type Initiator interface {
	Initiate(ctx context.Context, intent queue.TipIntent) (string, error)
}

// RetryPolicy bounds how network failures are retried across replay passes.
type RetryPolicy struct {
	MaxAttempts int           // after this many failures the intent is failed for good
	BaseDelay   time.Duration // first backoff step
	MaxDelay    time.Duration // backoff cap
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   30 * time.Second,
		MaxDelay:    30 * time.Minute,
	}
}

// Delay returns the wait before the next attempt: base doubled per prior
// attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

type Engine struct {
	queue     *queue.Queue
	initiator Initiator
	policy    RetryPolicy
	logger    *log.Logger

	replaying atomic.Bool
	now       func() time.Time
}

func NewEngine(q *queue.Queue, initiator Initiator, policy RetryPolicy, logger *log.Logger) *Engine {
	return &Engine{
		queue:     q,
		initiator: initiator,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Replay pushes every due intent through the initiator, one at a time, so at
// most one payment submission is ever in flight from this device. A second
// Replay while one is running returns immediately: the flag only lives for
// the process, which is fine because the queue itself is durable and safe to
// re-scan. The pass re-scans until nothing is due, so an intent enqueued
// while the pass was running is drained too instead of waiting for the next
// reconnect.
func (e *Engine) Replay(ctx context.Context) {
	if !e.replaying.CompareAndSwap(false, true) {
		e.logger.Printf("Replay already in progress, skipping")
		return
	}
	defer e.replaying.Store(false)

	for {
		due := e.dueIntents()
		if len(due) == 0 {
			return
		}
		e.logger.Printf("Replaying %d queued intent(s)", len(due))

		for _, intent := range due {
			if ctx.Err() != nil {
				return
			}
			e.processOne(ctx, intent)
		}
	}
}

// dueIntents returns intents awaiting submission: queued, or retryable with an
// elapsed backoff. Oldest first, same order they were enqueued.
func (e *Engine) dueIntents() []queue.TipIntent {
	var due []queue.TipIntent
	for _, intent := range e.queue.List() {
		switch intent.Status {
		case queue.StatusQueued:
			due = append(due, intent)
		case queue.StatusFailedRetryable:
			if !intent.NextRetryAt.After(e.now()) {
				due = append(due, intent)
			}
		}
	}
	return due
}

func (e *Engine) processOne(ctx context.Context, intent queue.TipIntent) {
	intent.Status = queue.StatusSyncing
	if err := e.queue.Update(intent); err != nil {
		e.logger.Printf("Failed to mark intent %s syncing: %v", intent.ID, err)
		return
	}

	correlationID, err := e.initiator.Initiate(ctx, intent)
	if err == nil {
		if err := e.queue.Remove(intent.ID); err != nil {
			e.logger.Printf("Failed to remove completed intent %s: %v", intent.ID, err)
		}
		e.logger.Printf("Intent %s submitted, correlation %s", intent.ID, correlationID)
		return
	}

	var rejection *api.RejectionError
	if errors.As(err, &rejection) {
		// The server said no; retrying the identical request cannot succeed.
		intent.Status = queue.StatusFailedPermanent
		intent.LastError = rejection.Reason
		e.logger.Printf("Intent %s rejected: %s", intent.ID, rejection.Reason)
	} else {
		intent.Attempts++
		intent.LastError = err.Error()
		if intent.Attempts >= e.policy.MaxAttempts {
			intent.Status = queue.StatusFailedPermanent
			e.logger.Printf("Intent %s failed %d times, giving up: %v", intent.ID, intent.Attempts, err)
		} else {
			intent.Status = queue.StatusFailedRetryable
			intent.NextRetryAt = e.now().Add(e.policy.Delay(intent.Attempts))
			e.logger.Printf("Intent %s failed (attempt %d), next retry at %s: %v",
				intent.ID, intent.Attempts, intent.NextRetryAt.Format(time.RFC3339), err)
		}
	}

	if err := e.queue.Update(intent); err != nil {
		e.logger.Printf("Failed to update intent %s: %v", intent.ID, err)
	}
}
