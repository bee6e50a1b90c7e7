// Package dispatcher applies decoded chain events to the derived state
// store. Events arrive in ascending (blockNumber, logIndex) order and every
// handler is safe to replay: log-keyed rows insert-or-skip, aggregate rows
// are recomputed from the previous snapshot inside one transaction.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/alert"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/contracts"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domains"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/retry"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/scoring"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/tracing"
)

const (
	defaultApplyRetryMaxAttempts = 3
	defaultRetryDelayInitial     = 100 * time.Millisecond
	defaultRetryDelayMax         = 1 * time.Second
)

// InvariantError marks a condition that indicates a missed or duplicated
// event: negative liquidity, an unknown aggregate on a lifecycle event.
// The dispatcher reports it and moves on; it is never auto-corrected.
type InvariantError struct {
	Kind    string
	Subject string
	Msg     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation [%s] %s: %s", e.Kind, e.Subject, e.Msg)
}

// EventStream is the publish side of a message transport. Applied events
// are fanned out through it so downstream consumers can tail state changes
// without polling Postgres.
type EventStream interface {
	PublishJSON(ctx context.Context, stream string, v any) (string, error)
}

// appliedEventsStream is the stream applied events are published to.
const appliedEventsStream = "domalend:events"

// Stores bundles the repositories the dispatcher writes through.
type Stores struct {
	Transactor  store.Transactor
	Scoring     store.ScoringEventRepository
	Loans       store.LoanRepository
	LoanHistory store.LoanHistoryRepository
	Pools       store.PoolRepository
	PoolHistory store.PoolHistoryRepository
	Auctions    store.AuctionRepository
	Requests    store.LoanRequestRepository
	Fundings    store.LoanFundingRepository
	Analytics   store.DomainAnalyticsRepository
	SystemLog   store.SystemEventRepository
	Batches     store.BatchOperationRepository
}

// Dispatcher is the single writer that turns the ordered event stream into
// state store mutations.
type Dispatcher struct {
	stores    Stores
	events    <-chan event.Event
	resolver  domains.Resolver
	scorer    scoring.Scorer
	submitter contracts.ScoreSubmitter
	alerter   alert.Alerter
	stream    EventStream
	logger    *slog.Logger

	autoSubmit             bool
	liquidationBufferHours int

	retryMaxAttempts int
	retryDelayStart  time.Duration
	retryDelayMax    time.Duration
	sleepFn          func(context.Context, time.Duration) error
}

type Option func(*Dispatcher)

func WithAutoSubmit(enabled bool) Option {
	return func(d *Dispatcher) {
		d.autoSubmit = enabled
	}
}

// WithLiquidationBuffer sets the grace period, in hours past the repayment
// deadline, stamped on new loans before the monitor treats them as
// liquidatable.
func WithLiquidationBuffer(hours int) Option {
	return func(d *Dispatcher) {
		if hours >= 0 {
			d.liquidationBufferHours = hours
		}
	}
}

func WithRetryConfig(maxAttempts int, delayInitial, delayMax time.Duration) Option {
	return func(d *Dispatcher) {
		d.retryMaxAttempts = maxAttempts
		d.retryDelayStart = delayInitial
		d.retryDelayMax = delayMax
	}
}

func WithAlerter(a alert.Alerter) Option {
	return func(d *Dispatcher) {
		d.alerter = a
	}
}

// WithEventStream enables publishing applied events to a message transport.
// Without it the dispatcher writes to Postgres only.
func WithEventStream(s EventStream) Option {
	return func(d *Dispatcher) {
		d.stream = s
	}
}

func New(
	stores Stores,
	events <-chan event.Event,
	resolver domains.Resolver,
	scorer scoring.Scorer,
	submitter contracts.ScoreSubmitter,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		stores:           stores,
		events:           events,
		resolver:         resolver,
		scorer:           scorer,
		submitter:        submitter,
		alerter:          &alert.NoopAlerter{},
		logger:           logger.With("component", "dispatcher"),
		autoSubmit:       true,
		retryMaxAttempts: defaultApplyRetryMaxAttempts,
		retryDelayStart:  defaultRetryDelayInitial,
		retryDelayMax:    defaultRetryDelayMax,
		sleepFn:          sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return ctx.Err()
		case ev, ok := <-d.events:
			if !ok {
				return nil
			}
			if err := d.dispatch(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev event.Event) error {
	key := ev.Key()
	spanCtx, span := tracing.Tracer("dispatcher").Start(ctx, "dispatcher.apply",
		otelTrace.WithAttributes(
			attribute.String("event", ev.Name()),
			attribute.String("tx_hash", key.TxHash),
			attribute.Int64("block_number", int64(key.BlockNumber)),
			attribute.Int("log_index", int(key.LogIndex)),
		),
	)
	start := time.Now()
	err := d.applyWithRetry(spanCtx, ev)
	metrics.DispatcherApplyLatency.WithLabelValues(ev.Name()).Observe(time.Since(start).Seconds())

	var inv *InvariantError
	if errors.As(err, &inv) {
		// Fatal for this event only: report, record, keep consuming.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		metrics.InvariantViolationsTotal.WithLabelValues(inv.Kind).Inc()
		d.logger.Error("invariant violation, event not applied",
			"event", ev.Name(),
			"tx_hash", key.TxHash,
			"log_index", key.LogIndex,
			"kind", inv.Kind,
			"subject", inv.Subject,
			"error", err,
		)
		d.recordViolation(ctx, ev, inv)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		metrics.DispatcherErrors.WithLabelValues(ev.Name()).Inc()
		d.logger.Error("apply event failed",
			"event", ev.Name(),
			"tx_hash", key.TxHash,
			"log_index", key.LogIndex,
			"error", err,
		)
		// Fail-fast so the supervisor restarts from the last committed
		// position; every handler tolerates the replay.
		return fmt.Errorf("dispatcher apply %s %s/%d: %w", ev.Name(), key.TxHash, key.LogIndex, err)
	}
	span.End()
	metrics.DispatcherEventsApplied.WithLabelValues(ev.Name()).Inc()
	metrics.DispatcherBlockNumber.Set(float64(key.BlockNumber))
	d.publishApplied(ctx, ev)
	return nil
}

// publishApplied fans the event out to the stream transport. Publish
// failures never block state application; consumers reconcile from
// Postgres on reconnect.
func (d *Dispatcher) publishApplied(ctx context.Context, ev event.Event) {
	if d.stream == nil {
		return
	}
	key := ev.Key()
	if _, err := d.stream.PublishJSON(ctx, appliedEventsStream, map[string]any{
		"event":        ev.Name(),
		"tx_hash":      key.TxHash,
		"block_number": key.BlockNumber,
		"log_index":    key.LogIndex,
	}); err != nil {
		d.logger.Warn("publish applied event failed", "event", ev.Name(), "error", err)
	}
}

func (d *Dispatcher) applyWithRetry(ctx context.Context, ev event.Event) error {
	const stage = "dispatcher.apply"

	var lastErr error
	lastDecision := retry.Decision{Class: retry.ClassTerminal, Reason: "unset"}

	for attempt := 1; attempt <= d.retryMaxAttempts; attempt++ {
		if err := d.Apply(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var inv *InvariantError
			if errors.As(err, &inv) {
				return err
			}
			lastErr = err
			lastDecision = retry.Classify(err)
			if !lastDecision.IsTransient() {
				return fmt.Errorf("terminal_failure stage=%s attempt=%d reason=%s: %w", stage, attempt, lastDecision.Reason, err)
			}
			if attempt == d.retryMaxAttempts {
				break
			}

			d.logger.Warn("apply attempt failed; retrying",
				"stage", stage,
				"classification_reason", lastDecision.Reason,
				"event", ev.Name(),
				"attempt", attempt,
				"max_attempts", d.retryMaxAttempts,
				"error", err,
			)
			if err := d.sleepFn(ctx, d.retryDelay(attempt)); err != nil {
				return err
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("transient_recovery_exhausted stage=%s attempts=%d reason=%s: %w", stage, d.retryMaxAttempts, lastDecision.Reason, lastErr)
}

// Apply routes one event to its handler. Exposed for replay tooling and
// tests; Run is the production entry point.
func (d *Dispatcher) Apply(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case *event.ScoringRequested:
		return d.handleScoringRequested(ctx, e)
	case *event.ScoreSubmitted:
		return d.handleScoreSubmitted(ctx, e)
	case *event.BatchScoringRequested:
		return d.handleBatchScoringRequested(ctx, e)
	case *event.BatchScoresSubmitted:
		return d.handleBatchScoresSubmitted(ctx, e)
	case *event.ScoreInvalidated:
		return d.handleScoreInvalidated(ctx, e)
	case *event.LoanCreated:
		return d.handleLoanCreated(ctx, e)
	case *event.LoanRepaid:
		return d.handleLoanRepaid(ctx, e)
	case *event.CollateralLocked:
		return d.handleCollateralLocked(ctx, e)
	case *event.CollateralReleased:
		return d.handleCollateralReleased(ctx, e)
	case *event.CollateralLiquidated:
		return d.handleCollateralLiquidated(ctx, e)
	case *event.PoolCreated:
		return d.handlePoolCreated(ctx, e)
	case *event.LiquidityAdded:
		return d.handleLiquidityAdded(ctx, e)
	case *event.LiquidityRemoved:
		return d.handleLiquidityRemoved(ctx, e)
	case *event.PoolUpdated:
		return d.handlePoolUpdated(ctx, e)
	case *event.AuctionStarted:
		return d.handleAuctionStarted(ctx, e)
	case *event.BidPlaced:
		return d.handleBidPlaced(ctx, e)
	case *event.AuctionEnded:
		return d.handleAuctionEnded(ctx, e)
	case *event.AuctionCancelled:
		return d.handleAuctionCancelled(ctx, e)
	case *event.LoanRequestCreated:
		return d.handleLoanRequestCreated(ctx, e)
	case *event.LoanRequestFunded:
		return d.handleLoanRequestFunded(ctx, e)
	case *event.LoanRequestCancelled:
		return d.handleLoanRequestCancelled(ctx, e)
	case *event.SystemPaused:
		return d.handleSystemPaused(ctx, e)
	default:
		metrics.DispatcherUnknownEvents.Inc()
		d.logger.Warn("no handler for event, skipping", "event", ev.Name())
		return nil
	}
}

// markReplay records that an event's idempotency key already existed, so
// the handler left the state untouched.
func (d *Dispatcher) markReplay(ev event.Event) {
	key := ev.Key()
	metrics.DispatcherEventsSkipped.WithLabelValues(ev.Name()).Inc()
	d.logger.Debug("event already applied, skipping",
		"event", ev.Name(),
		"tx_hash", key.TxHash,
		"log_index", key.LogIndex,
	)
}

func (d *Dispatcher) recordViolation(ctx context.Context, ev event.Event, inv *InvariantError) {
	key := ev.Key()
	details, _ := json.Marshal(map[string]any{
		"event":        ev.Name(),
		"kind":         inv.Kind,
		"subject":      inv.Subject,
		"message":      inv.Msg,
		"block_number": key.BlockNumber,
		"log_index":    key.LogIndex,
	})
	if err := d.stores.SystemLog.Append(ctx, &model.SystemEvent{
		EventType: model.SystemEventInvariantViolation,
		TxHash:    key.TxHash,
		Details:   details,
	}); err != nil {
		d.logger.Error("record invariant violation failed", "error", err)
	}
	if err := d.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeInvariantViolation,
		Subject: inv.Subject,
		Title:   "Event not applied: " + inv.Kind,
		Message: inv.Msg,
		Fields: map[string]string{
			"event":   ev.Name(),
			"tx_hash": key.TxHash,
		},
	}); err != nil {
		d.logger.Warn("invariant violation alert failed", "error", err)
	}
}

func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.retryDelayStart << (attempt - 1)
	if delay > d.retryDelayMax {
		delay = d.retryDelayMax
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
