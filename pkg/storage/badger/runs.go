package badger

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/training"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const runPrefix = "run:"

type RunRepository interface {
	Create(ctx context.Context, r training.Run) (training.Run, error)
	Get(ctx context.Context, id string) (training.Run, error)
	Update(ctx context.Context, r training.Run) error
	List(ctx context.Context, offset, limit uint64) ([]training.Run, uint64, error)
	Delete(ctx context.Context, id string) error
}

type runRepo struct {
	db *Database
}

func NewRunRepository(db *Database) RunRepository {
	return &runRepo{db: db}
}

func (r *runRepo) Create(ctx context.Context, run training.Run) (training.Run, error) {
	key := []byte(runPrefix + run.ID)
	val, err := cbor.Marshal(run)
	if err != nil {
		return training.Run{}, fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.set(key, val); err != nil {
		return training.Run{}, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return run, nil
}

func (r *runRepo) Get(ctx context.Context, id string) (training.Run, error) {
	key := []byte(runPrefix + id)
	val, err := r.db.get(key)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return training.Run{}, pkgerrors.ErrNotFound
		}

		return training.Run{}, err
	}
	var run training.Run
	if err := cbor.Unmarshal(val, &run); err != nil {
		return training.Run{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return run, nil
}

func (r *runRepo) Update(ctx context.Context, run training.Run) error {
	key := []byte(runPrefix + run.ID)
	if _, err := r.db.get(key); err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return pkgerrors.ErrNotFound
		}

		return err
	}
	val, err := cbor.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.set(key, val); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

func (r *runRepo) List(ctx context.Context, offset, limit uint64) ([]training.Run, uint64, error) {
	prefix := []byte(runPrefix)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	runs := make([]training.Run, len(values))
	for i, val := range values {
		var run training.Run
		if err := cbor.Unmarshal(val, &run); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
		runs[i] = run
	}

	return runs, total, nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	key := []byte(runPrefix + id)

	return r.db.delete(key)
}
