package operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/repository"
	"gorm.io/gorm"
)

// OperationStore is the slice of the operation repository used here.
type OperationStore interface {
	Create(ctx context.Context, op *entity.Operation) error
	FindByID(ctx context.Context, id uint) (*entity.Operation, error)
	ExistsBySiteID(ctx context.Context, siteID uint) (bool, error)
	Delete(ctx context.Context, id uint) error
	DeleteIfUnstarted(ctx context.Context, id uint) (bool, error)
	ListStartedIDs(ctx context.Context) ([]uint, error)
	ListUnstartedBefore(ctx context.Context, cutoff time.Time) ([]entity.Operation, error)
}

// Publisher hands an operation to the worker queue.
type Publisher interface {
	PublishRunOperation(ctx context.Context, operationID, siteID uint) error
}

type Scheduler struct {
	operations OperationStore
	validator  *Validator
	publisher  Publisher
	logger     Logger
}

func NewScheduler(operations OperationStore, validator *Validator, publisher Publisher, logger Logger) *Scheduler {
	return &Scheduler{
		operations: operations,
		validator:  validator,
		publisher:  publisher,
		logger:     logger,
	}
}

// Schedule admits a new operation for site and queues it. Nothing is
// written when validation fails or the site is busy.
func (s *Scheduler) Schedule(ctx context.Context, site *entity.Site, opType entity.OperationType, params map[string]any) (*entity.Operation, error) {
	clean, err := s.validator.Validate(ctx, site, opType, params)
	if err != nil {
		return nil, err
	}

	busy, err := s.operations.ExistsBySiteID(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending operation: %w", err)
	}
	if busy {
		return nil, ErrOperationInProgress
	}

	op := &entity.Operation{
		SiteID: site.ID,
		Type:   opType,
		Params: clean,
	}
	if err := s.operations.Create(ctx, op); err != nil {
		if errors.Is(err, repository.ErrOperationExists) {
			return nil, ErrOperationInProgress
		}
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}

	if err := s.publisher.PublishRunOperation(ctx, op.ID, site.ID); err != nil {
		if delErr := s.operations.Delete(context.WithoutCancel(ctx), op.ID); delErr != nil {
			s.logger.ErrorWithContextf(ctx, delErr, "[Scheduler] Failed to drop unqueued operation %d", op.ID)
		}
		return nil, fmt.Errorf("failed to queue operation: %w", err)
	}

	s.logger.InfoWithContextf(ctx, "[Scheduler] Queued %s operation %d for site %d", opType, op.ID, site.ID)
	op.Site = site
	return op, nil
}

// Clear discards op so the site accepts new operations again. A started
// operation can only be cleared once it has failed; one still running
// gives ErrOperationRunning.
func (s *Scheduler) Clear(ctx context.Context, op *entity.Operation, user *entity.User) error {
	if !CanClear(op, user) {
		return ErrNotClearable
	}

	current, err := s.operations.FindByID(ctx, op.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOperationNotFound
		}
		return fmt.Errorf("failed to load operation %d: %w", op.ID, err)
	}

	if current.HasFailed() {
		if err := s.operations.Delete(ctx, current.ID); err != nil {
			return fmt.Errorf("failed to delete operation %d: %w", current.ID, err)
		}
	} else {
		if current.HasStarted() {
			return ErrOperationRunning
		}
		// a worker may claim it between the load and the delete
		deleted, err := s.operations.DeleteIfUnstarted(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("failed to delete operation %d: %w", current.ID, err)
		}
		if !deleted {
			return ErrOperationRunning
		}
	}

	s.logger.InfoWithContextf(ctx, "[Scheduler] User %d cleared %s operation %d of site %d", user.ID, current.Type, current.ID, current.SiteID)
	return nil
}

// Retry replaces op with a fresh one of the same type and params. The
// params are checked against the site first so a retry that cannot be
// admitted leaves the failed operation in place.
func (s *Scheduler) Retry(ctx context.Context, site *entity.Site, op *entity.Operation, user *entity.User) (*entity.Operation, error) {
	if !CanClear(op, user) {
		return nil, ErrNotClearable
	}
	if _, err := s.validator.Validate(ctx, site, op.Type, op.Params); err != nil {
		return nil, err
	}
	if err := s.Clear(ctx, op, user); err != nil {
		return nil, err
	}
	return s.Schedule(ctx, site, op.Type, op.Params)
}
