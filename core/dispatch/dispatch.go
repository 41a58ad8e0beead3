package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/kvclstr-go/core/slot"
)

// Operation is one caller-supplied unit of work against a single borrowed
// connection. It returns a result, or fails with one of the recognized
// failure kinds ([ConnError], [RedirectError], [ErrClusterDown]) to steer
// the retry loop; any other error propagates to the caller unchanged and
// is never retried.
type Operation[T any] func(ctx context.Context, conn Conn) (T, error)

const (
	// DefaultMaxAttempts bounds a logical call to five physical attempts.
	DefaultMaxAttempts = 5

	// DefaultMaxTotalRetryTime bounds a logical call to ten seconds of
	// wall-clock retrying.
	DefaultMaxTotalRetryTime = 10 * time.Second
)

type Options struct {
	Log      *slog.Logger
	Provider ConnProvider

	// MaxAttempts is the per-call attempt budget. Defaults to
	// DefaultMaxAttempts.
	MaxAttempts int

	// MaxTotalRetryTime is the per-call wall-clock retry budget, measured
	// from the start of the call. Defaults to DefaultMaxTotalRetryTime.
	//
	// Both budgets apply independently: cascading redirections must not
	// loop forever just because they are fast, and a slow node must not
	// eat unbounded time just because attempts remain.
	MaxTotalRetryTime time.Duration

	Metrics DispatchMetrics
}

// Dispatcher routes operations to the cluster node serving their keys and
// rides out slot migrations and transient node failures. It holds no
// per-call state and is safe for concurrent use.
type Dispatcher struct {
	log          *slog.Logger
	provider     ConnProvider
	maxAttempts  int
	maxRetryTime time.Duration
	metrics      DispatchMetrics
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("dispatch: Options.Provider is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	maxRetryTime := opts.MaxTotalRetryTime
	if maxRetryTime == 0 {
		maxRetryTime = DefaultMaxTotalRetryTime
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopDispatchMetrics()
	}
	return &Dispatcher{
		log:          log,
		provider:     opts.Provider,
		maxAttempts:  maxAttempts,
		maxRetryTime: maxRetryTime,
		metrics:      metrics,
	}, nil
}

// Run dispatches op to the node serving key's slot.
func Run[T any](ctx context.Context, d *Dispatcher, key string, op Operation[T]) (T, error) {
	res, err := runSlot(ctx, d, slot.ForKey(key), op)
	d.metrics.OperationCompleted(outcomeLabel(err))
	return res, err
}

// RunKeys dispatches op for a multi-key operation. All keys must hash to
// the same slot; a mismatched or empty key set fails with
// [slot.ErrCrossSlot] or [slot.ErrNoKeys] before any connection is
// acquired.
func RunKeys[T any](ctx context.Context, d *Dispatcher, keys []string, op Operation[T]) (T, error) {
	s, err := slot.ForKeys(keys...)
	if err != nil {
		d.metrics.OperationCompleted(outcomeLabel(err))
		var zero T
		return zero, err
	}
	res, err := runSlot(ctx, d, s, op)
	d.metrics.OperationCompleted(outcomeLabel(err))
	return res, err
}

// RunAnyNode dispatches op once against an arbitrary live node, for
// operations that are not keyed to any slot. There is no retry loop:
// success and failure alike are final.
func RunAnyNode[T any](ctx context.Context, d *Dispatcher, op Operation[T]) (T, error) {
	res, err := runAttempt(ctx, d, anyTarget(), op)
	d.metrics.OperationCompleted(outcomeLabel(err))
	return res, err
}

// runSlot is the retry loop: acquire a connection per the current target,
// run the operation, classify the outcome, pick the next target and
// timing. Attempts are strictly sequential; each one borrows a fresh
// connection and releases it before the next.
func runSlot[T any](ctx context.Context, d *Dispatcher, s slot.Slot, op Operation[T]) (T, error) {
	var zero T

	deadline := time.Now().Add(d.maxRetryTime)
	home := slotTarget(s)
	tgt := home

	// correlates this call's retry chatter in the logs
	call := gonanoid.Must(8)

	for attemptsLeft := d.maxAttempts; attemptsLeft > 0; attemptsLeft-- {
		res, err := runAttempt(ctx, d, tgt, op)
		if err == nil {
			return res, nil
		}

		// No node anywhere: fatal regardless of remaining budget.
		if errors.Is(err, ErrClusterDown) {
			return zero, err
		}

		var redirect *RedirectError
		if errors.As(err, &redirect) {
			// Redirection is healthy steady-state chatter during slot
			// migration: stick to the indicated node and retry
			// immediately, no backoff. The slot-map renewal for MOVED
			// already happened inside the attempt, while the hinting
			// connection was still held.
			d.log.Debug("redirected",
				slog.String("call", call),
				slog.Int("slot", int(s)),
				slog.String("kind", redirect.Kind.String()),
				slog.String("node", redirect.Node),
			)
			d.metrics.Redirected(redirect.Kind.String())
			tgt = tgt.redirected(redirect)
			continue
		}

		var connErr *ConnError
		if !errors.As(err, &connErr) {
			// The operation's own failure: propagate unchanged, never
			// retry.
			return zero, err
		}

		d.log.Debug("connection failure",
			slog.String("call", call),
			slog.Int("slot", int(s)),
			slog.String("node", connErr.Node),
			slog.Int("attempts_left", attemptsLeft-1),
			slog.Any("error", err),
		)
		d.metrics.ConnectionFailure()

		// A node being down is itself a signal the slot map may be stale.
		d.provider.RenewSlotCache(ctx, nil)
		d.metrics.SlotCacheRenewal(false)

		// Any sticky redirect pointed into the failure; fall back to slot
		// routing.
		tgt = home

		next := attemptsLeft - 1
		if next == 0 {
			break
		}
		now := time.Now()
		if !now.Before(deadline) {
			return zero, fmt.Errorf("%w after %v", ErrRetryDeadline, d.maxRetryTime)
		}
		if err := sleep(ctx, backoffSleep(next, deadline, now)); err != nil {
			return zero, err
		}
	}

	return zero, ErrMaxAttempts
}

// runAttempt performs exactly one physical attempt: acquire per target,
// signal ASKING when following an ASK redirect, run the operation, release
// the connection on every exit path.
func runAttempt[T any](ctx context.Context, d *Dispatcher, tgt target, op Operation[T]) (T, error) {
	var zero T

	defer d.metrics.AttemptDuration().ObserveDuration()

	conn, err := acquire(ctx, d.provider, tgt)
	if err != nil {
		return zero, err
	}
	defer func() { _ = conn.Close() }()

	if tgt.ask {
		if err := conn.Asking(ctx); err != nil {
			return zero, asConnError(tgt.node, err)
		}
	}

	res, err := op(ctx, conn)
	if err != nil {
		var redirect *RedirectError
		if errors.As(err, &redirect) && redirect.Kind == RedirectMoved {
			// The slot has permanently moved: renew now, while the
			// connection that observed the move is still borrowed, so
			// the provider can refresh cheaply off it.
			d.provider.RenewSlotCache(ctx, conn)
			d.metrics.SlotCacheRenewal(true)
		}
		return zero, err
	}
	return res, nil
}

func acquire(ctx context.Context, p ConnProvider, tgt target) (Conn, error) {
	switch tgt.kind {
	case targetNode:
		return p.NodeConn(ctx, tgt.node)
	case targetAny:
		return p.AnyConn(ctx)
	default:
		return p.SlotConn(ctx, tgt.slot)
	}
}

// asConnError classifies err as a connection failure unless it already is
// one of the recognized kinds.
func asConnError(node string, err error) error {
	var connErr *ConnError
	if errors.Is(err, ErrClusterDown) || errors.As(err, &connErr) {
		return err
	}
	return &ConnError{Node: node, Err: err}
}
