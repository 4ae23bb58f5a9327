package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jvanheule/webhook-poller/internal/backoff"
	"github.com/jvanheule/webhook-poller/internal/gateway"
	"github.com/jvanheule/webhook-poller/internal/metrics"
	"github.com/jvanheule/webhook-poller/internal/model"
	"github.com/jvanheule/webhook-poller/internal/repository"
	"github.com/jvanheule/webhook-poller/internal/router"
)

// Poller:
// - claims a batch of pending webhook_events rows (FOR UPDATE SKIP LOCKED),
// - routes each row to a gateway application and delivers it,
// - writes every outcome inside the claim transaction, committed per batch.
//
// Multiple poller processes may run against the same table; the skip-locked
// claim is the only coordination between them.
type Poller struct {
	// Dependencies
	DB      *sqlx.DB
	Events  repository.EventsRepository
	Gateway gateway.Sender
	Router  *router.Router
	Backoff *backoff.Policy
	Log     *zap.Logger

	// Behavior
	BatchLimit int           // rows claimed per cycle
	IdleSleep  time.Duration // pause when a claim comes back empty
	FaultSleep time.Duration // pause after a store-level fault

	// Set when the gateway rejects our credentials; checked at the loop top
	// only, so the in-flight batch always finishes and commits. Single
	// goroutine, no locking needed.
	authStopped bool
}

// NewPoller builds a poller with sane defaults.
func NewPoller(
	db *sqlx.DB,
	eventsRepo repository.EventsRepository,
	gw gateway.Sender,
	rt *router.Router,
	bo *backoff.Policy,
	log *zap.Logger,
) *Poller {
	return &Poller{
		DB:         db,
		Events:     eventsRepo,
		Gateway:    gw,
		Router:     rt,
		Backoff:    bo,
		Log:        log,
		BatchLimit: 100,
		IdleSleep:  120 * time.Second,
		FaultSleep: time.Second,
	}
}

// Run polls until ctx is cancelled or the gateway reports invalid
// credentials. Store-level faults are logged and retried after FaultSleep;
// they never end the loop. Returns nil on graceful stop.
func (p *Poller) Run(ctx context.Context) error {
	if p.BatchLimit <= 0 {
		p.BatchLimit = 100
	}
	if p.IdleSleep <= 0 {
		p.IdleSleep = 120 * time.Second
	}
	if p.FaultSleep <= 0 {
		p.FaultSleep = time.Second
	}

	p.Log.Info("start polling for webhook events",
		zap.Int("batch_limit", p.BatchLimit),
		zap.Duration("idle_sleep", p.IdleSleep))

	for ctx.Err() == nil && !p.authStopped {
		n, err := p.runCycle(ctx)
		if err != nil {
			p.Log.Error("error during polling cycle", zap.Error(err))
			metrics.PollCyclesTotal.WithLabelValues("error").Inc()
			sleep(ctx, p.FaultSleep)
			continue
		}
		if n == 0 {
			metrics.PollCyclesTotal.WithLabelValues("empty").Inc()
			sleep(ctx, p.IdleSleep)
			continue
		}
		metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
	}

	p.Log.Info("poller stopped gracefully")
	return nil
}

// runCycle claims one batch and processes it. The claim and every outcome
// write share a single transaction: if anything fails before commit, all
// claimed rows revert to pending and the next cycle sees them again.
//
// The transaction runs on a context detached from the stop signal: shutdown
// is only honored at the loop top, so a signal arriving mid-batch never
// aborts rows that are already claimed (or worse, rolls back the outcome of
// a delivery that already reached the gateway).
func (p *Poller) runCycle(ctx context.Context) (int, error) {
	batchCtx := context.WithoutCancel(ctx)

	tx, err := p.DB.BeginTxx(batchCtx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	events, err := p.Events.ClaimBatch(batchCtx, tx, p.BatchLimit)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		_ = tx.Rollback()
		return 0, nil
	}

	if err := p.processBatch(batchCtx, tx, events); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(events), nil
}

// processBatch delivers every claimed row. It re-detaches the context so the
// batch finishes and commits even when the caller's context is cancelled
// between rows.
func (p *Poller) processBatch(ctx context.Context, tx *sqlx.Tx, events []model.ClaimedEvent) error {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		if err := p.handleEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return nil
}

// handleEvent routes, delivers and classifies one claimed row. Delivery
// failures become state transitions for that row; only store write errors
// are returned, which aborts (and rolls back) the whole batch.
func (p *Poller) handleEvent(ctx context.Context, tx *sqlx.Tx, ev model.ClaimedEvent) error {
	appID, ok := p.Router.Route(ev.SourceKey)
	if !ok {
		if err := p.Events.MarkSkipped(ctx, tx, ev.ID); err != nil {
			return err
		}
		p.Log.Debug("unknown bucket, cannot be routed to an application",
			zap.Int64("id", ev.ID),
			zap.String("source_key", ev.SourceKey))
		metrics.EventsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	confirmationID, err := p.Gateway.Send(ctx, appID, ev.ID, ev.EventType, ev.Payload)
	if err != nil {
		return p.handleSendError(ctx, tx, ev, err)
	}

	if err := p.Events.MarkSent(ctx, tx, ev.ID, confirmationID); err != nil {
		return err
	}
	p.Log.Info("event delivered",
		zap.Int64("id", ev.ID),
		zap.String("confirmation_id", confirmationID))
	metrics.EventsTotal.WithLabelValues("sent").Inc()
	return nil
}

func (p *Poller) handleSendError(ctx context.Context, tx *sqlx.Tx, ev model.ClaimedEvent, sendErr error) error {
	var vErr *gateway.ValidationError
	if errors.As(sendErr, &vErr) {
		// Invalid body, no reason to retry.
		if err := p.Events.MarkDead(ctx, tx, ev.ID, ev.Attempts+1, sendErr.Error()); err != nil {
			return err
		}
		p.Log.Error("validation error when delivering event",
			zap.Int64("id", ev.ID),
			zap.Int("status_code", vErr.StatusCode),
			zap.Error(sendErr))
		metrics.EventsTotal.WithLabelValues("dead").Inc()
		return nil
	}

	var aErr *gateway.AuthError
	if errors.As(sendErr, &aErr) {
		// Credentials are broken for every event, not just this one: stop
		// claiming new batches and hand the row back untouched so it is
		// picked up again after the operator fixes the token.
		p.authStopped = true
		if err := p.Events.MarkPending(ctx, tx, ev.ID); err != nil {
			return err
		}
		p.Log.Error("invalid auth header, stopping poller", zap.Int64("id", ev.ID))
		metrics.EventsTotal.WithLabelValues("auth_failed").Inc()
		return nil
	}

	// Anything else is transient: schedule a retry with backoff computed
	// from the attempt count before this attempt.
	nextAt := p.Backoff.NextAttemptAt(time.Now().UTC(), ev.Attempts)
	if err := p.Events.MarkRetry(ctx, tx, ev.ID, ev.Attempts+1, sendErr.Error(), nextAt); err != nil {
		return err
	}
	p.Log.Error("error when delivering event, retry scheduled",
		zap.Int64("id", ev.ID),
		zap.Int("attempts", ev.Attempts+1),
		zap.Time("next_attempt_at", nextAt),
		zap.Error(sendErr))
	metrics.EventsTotal.WithLabelValues("retried").Inc()
	return nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
