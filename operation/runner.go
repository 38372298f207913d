package operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/pipeline"
	"github.com/tnqbao/gau-site-director/repository"
	"gorm.io/gorm"
)

const (
	interruptedMessage = "interrupted"
	recoveryLeaseKey   = "director:recovery"
)

func operationLeaseKey(id uint) string {
	return fmt.Sprintf("director:operation-lease:%d", id)
}

type Logger interface {
	InfoWithContextf(ctx context.Context, format string, args ...any)
	WarningWithContextf(ctx context.Context, format string, args ...any)
	ErrorWithContextf(ctx context.Context, err error, format string, args ...any)
}

type ActionStore interface {
	DeleteByOperationID(ctx context.Context, operationID uint) error
	SaveProgress(ctx context.Context, action *entity.Action) error
	FailInterrupted(ctx context.Context, operationIDs []uint, message string) (int64, error)
}

type Notifier interface {
	NotifySite(ctx context.Context, event entity.SiteEvent) error
}

type Archiver interface {
	ArchiveOperation(ctx context.Context, trace entity.OperationTrace) (string, error)
}

type Alerter interface {
	SendOperationFailure(ctx context.Context, email, content, actionUrl string) error
}

// Leases hands out exclusive claims that lapse unless their holder keeps
// refreshing them.
type Leases interface {
	Lease(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	LeaseHeld(ctx context.Context, key string) (bool, error)
}

type RunnerOption func(*Runner)

func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

func WithArchiver(a Archiver) RunnerOption {
	return func(r *Runner) { r.archiver = a }
}

// WithAlerter mails email whenever an operation fails.
func WithAlerter(a Alerter, email string) RunnerOption {
	return func(r *Runner) {
		r.alerter = a
		r.operatorEmail = email
	}
}

// WithRequeue lets RecoverInterrupted republish operations that were
// admitted but never picked up for longer than after.
func WithRequeue(p Publisher, after time.Duration) RunnerOption {
	return func(r *Runner) {
		r.publisher = p
		r.requeueAfter = after
	}
}

// WithLeases makes every run hold a per-operation lease, and recovery skip
// operations whose lease is still alive.
func WithLeases(l Leases, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.leases = l
		r.leaseTTL = ttl
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// Runner executes queued operations, one pipeline per call.
type Runner struct {
	operations OperationStore
	actions    ActionStore
	builder    *Builder
	logger     Logger

	notifier      Notifier
	archiver      Archiver
	alerter       Alerter
	operatorEmail string
	publisher     Publisher
	requeueAfter  time.Duration
	leases        Leases
	leaseTTL      time.Duration
	now           func() time.Time
}

func NewRunner(operations OperationStore, actions ActionStore, builder *Builder, logger Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		operations: operations,
		actions:    actions,
		builder:    builder,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loads the operation, executes its actions and cleans up. A failed
// action is returned as *pipeline.ActionError and the operation row is kept
// so the site stays locked until someone clears it.
func (r *Runner) Run(ctx context.Context, operationID uint) error {
	if r.leases != nil {
		release, ok, err := r.leases.Lease(ctx, operationLeaseKey(operationID), r.leaseTTL)
		if err != nil {
			return fmt.Errorf("failed to lease operation %d: %w", operationID, err)
		}
		if !ok {
			return ErrAlreadyStarted
		}
		defer release()
	}

	op, err := r.operations.FindByID(ctx, operationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOperationNotFound
		}
		return fmt.Errorf("failed to load operation %d: %w", operationID, err)
	}
	if op.HasStarted() {
		return ErrAlreadyStarted
	}
	site := op.Site
	if site == nil {
		return ErrSiteMissing
	}

	// once started, a run is never abandoned halfway
	ctx = context.WithoutCancel(ctx)

	// rows left by an earlier registration that never got to run
	if len(op.Actions) > 0 {
		if err := r.actions.DeleteByOperationID(ctx, op.ID); err != nil {
			return fmt.Errorf("failed to reset actions of operation %d: %w", op.ID, err)
		}
		op.Actions = nil
	}

	p, scope, err := r.builder.Build(ctx, op, site, pipeline.WithActionObserver(func(ctx context.Context, action *entity.Action) {
		r.notify(ctx, entity.SiteEvent{
			SiteID:      site.ID,
			Kind:        entity.SiteEventActionStarted,
			OperationID: op.ID,
			Operation:   op.Type,
			Action:      action.Slug,
		})
	}))
	if err != nil {
		return fmt.Errorf("failed to build operation %d: %w", op.ID, err)
	}

	r.logger.InfoWithContextf(ctx, "[Runner] Starting %s operation %d for site %d", op.Type, op.ID, site.ID)
	r.notify(ctx, entity.SiteEvent{SiteID: site.ID, Kind: entity.SiteEventStateChanged, OperationID: op.ID, Operation: op.Type})

	runErr := p.Run(ctx, site, scope)
	if errors.Is(runErr, repository.ErrOperationNotPending) {
		r.logger.WarningWithContextf(ctx, "[Runner] Operation %d was claimed by another worker", op.ID)
		return ErrAlreadyStarted
	}
	succeeded := runErr == nil
	op.Actions = p.Actions()

	r.archive(ctx, op, site, succeeded)

	if succeeded {
		if err := r.operations.Delete(ctx, op.ID); err != nil {
			r.logger.ErrorWithContextf(ctx, err, "[Runner] Failed to delete finished operation %d", op.ID)
		}
		r.logger.InfoWithContextf(ctx, "[Runner] Operation %d for site %d finished", op.ID, site.ID)
	} else {
		r.logger.ErrorWithContextf(ctx, runErr, "[Runner] Operation %d for site %d failed", op.ID, site.ID)
		r.alert(ctx, op, site, runErr)
	}

	r.notify(ctx, entity.SiteEvent{
		SiteID:      site.ID,
		Kind:        entity.SiteEventOperationFinished,
		OperationID: op.ID,
		Operation:   op.Type,
		Succeeded:   &succeeded,
	})
	return runErr
}

// RecoverInterrupted settles operations whose worker died mid-run. The
// returned count is the number of actions marked failed. With leases, only
// one instance recovers at a time and operations still leased by a live
// worker are left alone.
func (r *Runner) RecoverInterrupted(ctx context.Context) (int64, error) {
	if r.leases != nil {
		release, ok, err := r.leases.Lease(ctx, recoveryLeaseKey, r.leaseTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to take recovery lease: %w", err)
		}
		if !ok {
			r.logger.InfoWithContextf(ctx, "[Runner] Recovery already in progress elsewhere; skipping")
			return 0, nil
		}
		defer release()
	}

	started, err := r.operations.ListStartedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list started operations: %w", err)
	}
	ids, err := r.orphaned(ctx, started)
	if err != nil {
		return 0, err
	}

	failed, err := r.actions.FailInterrupted(ctx, ids, interruptedMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted actions: %w", err)
	}

	for _, id := range ids {
		op, err := r.operations.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return failed, fmt.Errorf("failed to load operation %d: %w", id, err)
		}
		if op.HasFailed() {
			continue
		}

		pending := firstUnfinished(op)
		if pending == nil {
			// every action succeeded but the worker died before cleanup
			if err := r.operations.Delete(ctx, op.ID); err != nil {
				return failed, fmt.Errorf("failed to delete finished operation %d: %w", op.ID, err)
			}
			r.logger.InfoWithContextf(ctx, "[Runner] Removed completed operation %d left behind", op.ID)
			continue
		}

		now := r.now()
		pending.StartedTime = &now
		pending.SetResult(false)
		pending.AppendMessage(interruptedMessage)
		if err := r.actions.SaveProgress(ctx, pending); err != nil {
			return failed, fmt.Errorf("failed to mark action %d interrupted: %w", pending.ID, err)
		}
		failed++
	}

	if failed > 0 {
		r.logger.WarningWithContextf(ctx, "[Runner] Marked %d interrupted actions as failed", failed)
	}

	if r.publisher != nil {
		if err := r.requeueStale(ctx); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

// orphaned drops the operations a live worker still holds a lease on. A
// lease left by a worker that just died lapses within one ttl, so held
// leases are checked again after that long.
func (r *Runner) orphaned(ctx context.Context, ids []uint) ([]uint, error) {
	if r.leases == nil {
		return ids, nil
	}
	free, held, err := r.splitLeased(ctx, ids)
	if err != nil || len(held) == 0 {
		return free, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.leaseTTL):
	}

	lapsed, held, err := r.splitLeased(ctx, held)
	if err != nil {
		return nil, err
	}
	for _, id := range held {
		r.logger.InfoWithContextf(ctx, "[Runner] Operation %d is still running; leaving it alone", id)
	}
	return append(free, lapsed...), nil
}

func (r *Runner) splitLeased(ctx context.Context, ids []uint) (free, held []uint, err error) {
	for _, id := range ids {
		ok, err := r.leases.LeaseHeld(ctx, operationLeaseKey(id))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check lease of operation %d: %w", id, err)
		}
		if ok {
			held = append(held, id)
		} else {
			free = append(free, id)
		}
	}
	return free, held, nil
}

func (r *Runner) requeueStale(ctx context.Context) error {
	stale, err := r.operations.ListUnstartedBefore(ctx, r.now().Add(-r.requeueAfter))
	if err != nil {
		return fmt.Errorf("failed to list queued operations: %w", err)
	}
	for _, op := range stale {
		if err := r.publisher.PublishRunOperation(ctx, op.ID, op.SiteID); err != nil {
			return fmt.Errorf("failed to requeue operation %d: %w", op.ID, err)
		}
		r.logger.InfoWithContextf(ctx, "[Runner] Requeued operation %d for site %d", op.ID, op.SiteID)
	}
	return nil
}

func firstUnfinished(op *entity.Operation) *entity.Action {
	for i := range op.Actions {
		if op.Actions[i].Result == nil {
			return &op.Actions[i]
		}
	}
	return nil
}

func (r *Runner) notify(ctx context.Context, event entity.SiteEvent) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifySite(ctx, event); err != nil {
		r.logger.WarningWithContextf(ctx, "[Runner] Failed to publish %s event for site %d: %v", event.Kind, event.SiteID, err)
	}
}

func (r *Runner) archive(ctx context.Context, op *entity.Operation, site *entity.Site, succeeded bool) {
	if r.archiver == nil {
		return
	}
	trace := entity.OperationTrace{
		OperationID: op.ID,
		SiteID:      site.ID,
		SiteName:    site.Name,
		Type:        op.Type,
		Params:      op.Params,
		CreatedTime: op.CreatedTime,
		StartedTime: op.StartedTime,
		FinishedAt:  r.now(),
		Succeeded:   succeeded,
		Actions:     op.Actions,
	}
	key, err := r.archiver.ArchiveOperation(ctx, trace)
	if err != nil {
		r.logger.WarningWithContextf(ctx, "[Runner] Failed to archive operation %d: %v", op.ID, err)
		return
	}
	r.logger.InfoWithContextf(ctx, "[Runner] Archived operation %d to %s", op.ID, key)
}

func (r *Runner) alert(ctx context.Context, op *entity.Operation, site *entity.Site, runErr error) {
	if r.alerter == nil || r.operatorEmail == "" {
		return
	}
	content := fmt.Sprintf("Operation %s (%d) on site %s failed: %v", op.Type, op.ID, site.Name, runErr)
	actionURL := fmt.Sprintf("/api/v1/director/sites/%d/operation", site.ID)
	if err := r.alerter.SendOperationFailure(ctx, r.operatorEmail, content, actionURL); err != nil {
		r.logger.WarningWithContextf(ctx, "[Runner] Failed to send failure mail for operation %d: %v", op.ID, err)
	}
}
