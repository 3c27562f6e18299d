package storage

import (
	"context"
	"sync"

	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/training"
)

type inMemoryStorage struct {
	sync.Mutex

	data map[string]interface{}
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		data: make(map[string]interface{}),
	}
}

func (s *inMemoryStorage) Create(_ context.Context, key string, value interface{}) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; ok {
		return pkgerrors.ErrEntityExists
	}

	s.data[key] = value

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, key string) (interface{}, error) {
	if key == "" {
		return nil, pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if val, ok := s.data[key]; ok {
		return val, nil
	}

	return nil, pkgerrors.ErrNotFound
}

func (s *inMemoryStorage) Update(_ context.Context, key string, value interface{}) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; !ok {
		return pkgerrors.ErrNotFound
	}

	s.data[key] = value

	return nil
}

func (s *inMemoryStorage) List(_ context.Context, offset, limit uint64) (result []interface{}, total uint64, err error) {
	s.Lock()
	defer s.Unlock()

	keys := make([]string, 0)
	for k := range s.data {
		keys = append(keys, k)
	}

	total = uint64(len(keys))
	if offset >= total {
		return nil, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	result = make([]interface{}, end-offset)
	for i := offset; i < end; i++ {
		result[i-offset] = s.data[keys[i]]
	}

	return result, total, nil
}

func (s *inMemoryStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	delete(s.data, key)

	return nil
}

type memoryRunRepo struct {
	storage Storage
}

func newMemoryRunRepository(s Storage) RunRepository {
	return &memoryRunRepo{storage: s}
}

func (r *memoryRunRepo) Create(ctx context.Context, run training.Run) (training.Run, error) {
	if err := r.storage.Create(ctx, run.ID, run); err != nil {
		return training.Run{}, err
	}

	return run, nil
}

func (r *memoryRunRepo) Get(ctx context.Context, id string) (training.Run, error) {
	data, err := r.storage.Get(ctx, id)
	if err != nil {
		return training.Run{}, err
	}
	run, ok := data.(training.Run)
	if !ok {
		return training.Run{}, pkgerrors.ErrInvalidData
	}

	return run, nil
}

func (r *memoryRunRepo) Update(ctx context.Context, run training.Run) error {
	return r.storage.Update(ctx, run.ID, run)
}

func (r *memoryRunRepo) List(ctx context.Context, offset, limit uint64) ([]training.Run, uint64, error) {
	data, total, err := r.storage.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	runs := make([]training.Run, len(data))
	for i, d := range data {
		run, ok := d.(training.Run)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		runs[i] = run
	}

	return runs, total, nil
}

func (r *memoryRunRepo) Delete(ctx context.Context, id string) error {
	return r.storage.Delete(ctx, id)
}
