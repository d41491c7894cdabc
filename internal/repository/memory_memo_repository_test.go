package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/memo-service/internal/domain"
)

func newSentMemo(t *testing.T, id string, updated time.Time) *domain.Memo {
	t.Helper()
	subject, message := "Budget", "body"
	memo, err := domain.NewDraft(id, domain.Identity{Email: "a@x.edu", Name: "Ada"}, domain.MemoFields{}, updated)
	require.NoError(t, err)
	require.NoError(t, memo.Send(domain.MemoFields{
		To:      []string{"b@x.edu"},
		Subject: &subject,
		Message: &message,
	}, updated))
	return memo
}

func TestInMemoryMemoRepository_UpdateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMemoRepository()
	memo := newSentMemo(t, "m1", time.Now())
	require.NoError(t, repo.Create(ctx, memo))
	assert.EqualValues(t, 1, memo.Version)

	first, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)

	require.NoError(t, first.MarkReviewed(time.Now()))
	require.NoError(t, repo.Update(ctx, first))
	assert.EqualValues(t, 2, first.Version)

	second.Archive(time.Now())
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MemoStatusReviewed, stored.Status)
	assert.False(t, stored.IsArchived)
}

func TestInMemoryMemoRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMemoRepository()
	memo := newSentMemo(t, "m1", time.Now())
	require.NoError(t, repo.Create(ctx, memo))

	memo.Subject = "changed after create"
	loaded, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	loaded.Recipients.To[0] = "changed@x.edu"

	again, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Budget", again.Subject)
	assert.Equal(t, "b@x.edu", again.Recipients.To[0])
}

func TestInMemoryMemoRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMemoRepository()

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.ErrorIs(t, repo.Delete(ctx, "missing"), pgx.ErrNoRows)
	assert.ErrorIs(t, repo.Update(ctx, &domain.Memo{ID: "missing"}), pgx.ErrNoRows)
}

func TestInMemoryMemoRepository_ListPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMemoRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, repo.Create(ctx, newSentMemo(t, id, base.Add(time.Duration(i)*time.Hour))))
	}

	page, err := repo.ListForViewer(ctx, MemoFilter{Viewer: "b@x.edu", View: domain.ViewInbox, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].ID)
	assert.Equal(t, "m2", page[1].ID)

	page, err = repo.ListForViewer(ctx, MemoFilter{Viewer: "b@x.edu", View: domain.ViewInbox, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].ID)

	page, err = repo.ListForViewer(ctx, MemoFilter{Viewer: "b@x.edu", View: domain.ViewInbox, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = repo.ListForViewer(ctx, MemoFilter{Viewer: "a@x.edu", View: domain.ViewSent})
	require.NoError(t, err)
	assert.Len(t, page, 3)

	_, err = repo.ListForViewer(ctx, MemoFilter{Viewer: "a@x.edu", View: domain.View("bogus")})
	assert.Error(t, err)
}

func TestViewPredicate_CoversEveryView(t *testing.T) {
	for _, view := range []domain.View{
		domain.ViewInbox, domain.ViewSent, domain.ViewDrafts, domain.ViewArchived,
		domain.ViewPending, domain.ViewApproved, domain.ViewTracking,
	} {
		predicate, err := viewPredicate(view)
		require.NoError(t, err, view)
		assert.Contains(t, predicate, "$1", view)
	}
	_, err := viewPredicate(domain.View("bogus"))
	assert.Error(t, err)
}
