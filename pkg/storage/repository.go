package storage

import (
	"context"

	"github.com/absmach/fedsim/training"
)

type RunRepository interface {
	Create(ctx context.Context, r training.Run) (training.Run, error)
	Get(ctx context.Context, id string) (training.Run, error)
	Update(ctx context.Context, r training.Run) error
	List(ctx context.Context, offset, limit uint64) ([]training.Run, uint64, error)
	Delete(ctx context.Context, id string) error
}
