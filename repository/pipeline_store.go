package repository

import (
	"context"

	"github.com/tnqbao/gau-site-director/entity"
)

// PipelineStore persists pipeline progress through the action and
// operation repositories.
type PipelineStore struct {
	repo *Repository
}

func (r *Repository) PipelineStore() *PipelineStore {
	return &PipelineStore{repo: r}
}

func (s *PipelineStore) CreateAction(ctx context.Context, action *entity.Action) error {
	return s.repo.ActionRepo.Create(ctx, action)
}

func (s *PipelineStore) SaveAction(ctx context.Context, action *entity.Action) error {
	return s.repo.ActionRepo.SaveProgress(ctx, action)
}

func (s *PipelineStore) MarkOperationStarted(ctx context.Context, op *entity.Operation) error {
	return s.repo.OperationRepo.MarkStarted(ctx, op)
}
