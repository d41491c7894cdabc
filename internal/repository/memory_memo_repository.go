package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/memo-service/internal/domain"
)

// InMemoryMemoRepository keeps memos in process memory. It is used when no
// database is configured and in tests. It is not persistent.
type InMemoryMemoRepository struct {
	mu    sync.RWMutex
	memos map[string]*domain.Memo
}

// NewInMemoryMemoRepository creates an empty repository.
func NewInMemoryMemoRepository() *InMemoryMemoRepository {
	return &InMemoryMemoRepository{memos: make(map[string]*domain.Memo)}
}

func (r *InMemoryMemoRepository) Create(_ context.Context, memo *domain.Memo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.memos[memo.ID]; exists {
		return fmt.Errorf("memo %s already exists", memo.ID)
	}
	memo.Version = 1
	r.memos[memo.ID] = memo.Clone()
	return nil
}

func (r *InMemoryMemoRepository) GetByID(_ context.Context, id string) (*domain.Memo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	memo, ok := r.memos[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return memo.Clone(), nil
}

func (r *InMemoryMemoRepository) Update(_ context.Context, memo *domain.Memo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.memos[memo.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != memo.Version {
		return ErrVersionConflict
	}
	memo.Version++
	r.memos[memo.ID] = memo.Clone()
	return nil
}

func (r *InMemoryMemoRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memos[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.memos, id)
	return nil
}

func (r *InMemoryMemoRepository) ListForViewer(_ context.Context, filter MemoFilter) ([]domain.Memo, error) {
	if _, ok := domain.ParseView(string(filter.View)); !ok || filter.View == "" {
		return nil, fmt.Errorf("unknown view %q", filter.View)
	}
	r.mu.RLock()
	matched := make([]domain.Memo, 0)
	for _, memo := range r.memos {
		if filter.View.Matches(memo, filter.Viewer) {
			matched = append(matched, *memo.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Memo{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}
