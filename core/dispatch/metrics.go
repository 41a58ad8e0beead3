package dispatch

import (
	"context"
	"errors"

	"github.com/codewandler/kvclstr-go/core/slot"
)

// Timer measures the duration of one attempt. Call ObserveDuration when the
// attempt completes.
type Timer interface {
	ObserveDuration()
}

// DispatchMetrics is the instrumentation hook for the dispatcher. All
// methods must be safe for concurrent use.
type DispatchMetrics interface {
	// AttemptDuration times one physical attempt, acquisition included.
	AttemptDuration() Timer

	// OperationCompleted counts one finished logical call by outcome:
	// success, cluster_down, max_attempts, retry_deadline, cross_slot,
	// no_keys, canceled, deadline or error.
	OperationCompleted(outcome string)

	// Redirected counts one redirection by kind: moved or ask.
	Redirected(kind string)

	// ConnectionFailure counts one retryable connection failure.
	ConnectionFailure()

	// SlotCacheRenewal counts one requested slot-map renewal. Hinted
	// renewals are the cheap, localized kind that follow a MOVED reply.
	SlotCacheRenewal(hinted bool)
}

// outcomeLabel maps a call's terminal error to its OperationCompleted
// label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrClusterDown):
		return "cluster_down"
	case errors.Is(err, ErrMaxAttempts):
		return "max_attempts"
	case errors.Is(err, ErrRetryDeadline):
		return "retry_deadline"
	case errors.Is(err, slot.ErrCrossSlot):
		return "cross_slot"
	case errors.Is(err, slot.ErrNoKeys):
		return "no_keys"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	default:
		return "error"
	}
}

// nopDispatchMetrics is a no-op implementation of DispatchMetrics.
type nopDispatchMetrics struct{}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

func (nopDispatchMetrics) AttemptDuration() Timer    { return nopTimer{} }
func (nopDispatchMetrics) OperationCompleted(string) {}
func (nopDispatchMetrics) Redirected(string)         {}
func (nopDispatchMetrics) ConnectionFailure()        {}
func (nopDispatchMetrics) SlotCacheRenewal(bool)     {}

// NopDispatchMetrics returns a no-op DispatchMetrics implementation.
func NopDispatchMetrics() DispatchMetrics { return nopDispatchMetrics{} }
