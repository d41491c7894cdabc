package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/domain"
	"github.com/spec-kit/memo-service/internal/persistence"
)

// startPostgres runs a throwaway Postgres with the repo migrations applied.
// Tests skip when Docker is not available.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres container in -short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "memo",
				"POSTGRES_PASSWORD": "memo",
				"POSTGRES_DB":       "memo",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://memo:memo@%s:%s/memo?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()))
	return pool
}

func TestMemoRepository_Postgres(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("update is compare-and-swap", func(t *testing.T) {
		repo := NewMemoRepository(pool)
		memo := newSentMemo(t, "cas-1", base)
		require.NoError(t, repo.Create(ctx, memo))
		assert.EqualValues(t, 1, memo.Version)

		first, err := repo.GetByID(ctx, "cas-1")
		require.NoError(t, err)
		second, err := repo.GetByID(ctx, "cas-1")
		require.NoError(t, err)

		require.NoError(t, first.MarkReviewed(base.Add(time.Minute)))
		require.NoError(t, repo.Update(ctx, first))
		assert.EqualValues(t, 2, first.Version)

		second.Archive(base.Add(2 * time.Minute))
		assert.ErrorIs(t, repo.Update(ctx, second), ErrVersionConflict)

		stored, err := repo.GetByID(ctx, "cas-1")
		require.NoError(t, err)
		assert.Equal(t, domain.MemoStatusReviewed, stored.Status)
		assert.False(t, stored.IsArchived)
		assert.EqualValues(t, 2, stored.Version)
	})

	t.Run("missing rows", func(t *testing.T) {
		repo := NewMemoRepository(pool)
		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, pgx.ErrNoRows)
		assert.ErrorIs(t, repo.Delete(ctx, "missing"), pgx.ErrNoRows)
		assert.ErrorIs(t, repo.Update(ctx, &domain.Memo{ID: "missing", Version: 1}), pgx.ErrNoRows)
	})

	t.Run("documents round trip", func(t *testing.T) {
		repo := NewMemoRepository(pool)
		memo := newSentMemo(t, "docs-1", base)
		memo.Recipients.Bcc = []string{"secret@x.edu"}
		memo.Attachments = []domain.Attachment{{Name: "plan.pdf", URL: "https://files/plan.pdf"}}
		require.NoError(t, repo.Create(ctx, memo))

		loaded, err := repo.GetByID(ctx, "docs-1")
		require.NoError(t, err)
		_, err = loaded.AppendMinute(domain.Identity{Email: "b@x.edu", Name: "Bola"}, "<p>Noted</p>",
			domain.DecisionComment, []domain.Attachment{{Name: "r.pdf", URL: "https://files/r.pdf"}}, base.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, repo.Update(ctx, loaded))

		stored, err := repo.GetByID(ctx, "docs-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"secret@x.edu"}, stored.Recipients.Bcc)
		assert.Equal(t, memo.Attachments, stored.Attachments)
		require.Len(t, stored.Minutes, 1)
		assert.Equal(t, "b@x.edu", stored.Minutes[0].AuthorEmail)
		assert.Equal(t, "r.pdf", stored.Minutes[0].Attachments[0].Name)
		assert.True(t, stored.Minutes[0].CreatedAt.Equal(base.Add(time.Hour)))
	})

	t.Run("views match the domain predicate", func(t *testing.T) {
		_, err := pool.Exec(ctx, `DELETE FROM memos`)
		require.NoError(t, err)
		repo := NewMemoRepository(pool)
		memory := NewInMemoryMemoRepository()
		for _, memo := range viewFixtures(t, base) {
			require.NoError(t, repo.Create(ctx, memo.Clone()))
			require.NoError(t, memory.Create(ctx, memo.Clone()))
		}

		views := []domain.View{
			domain.ViewInbox, domain.ViewSent, domain.ViewDrafts, domain.ViewArchived,
			domain.ViewPending, domain.ViewApproved, domain.ViewTracking,
		}
		for _, viewer := range []string{"a@x.edu", "b@x.edu", "c@x.edu", "d@x.edu", "secret@x.edu", "z@x.edu"} {
			for _, view := range views {
				filter := MemoFilter{Viewer: viewer, View: view, Limit: 50}
				fromSQL, err := repo.ListForViewer(ctx, filter)
				require.NoError(t, err)
				fromDomain, err := memory.ListForViewer(ctx, filter)
				require.NoError(t, err)
				assert.Equal(t, memoIDs(fromDomain), memoIDs(fromSQL), "%s %s", viewer, view)
			}
		}
	})
}

func viewFixtures(t *testing.T, base time.Time) []*domain.Memo {
	t.Helper()
	ada := domain.Identity{Email: "a@x.edu", Name: "Ada"}
	subject, message := "Budget", "body"
	send := func(id string, from domain.Identity, fields domain.MemoFields, at time.Time) *domain.Memo {
		memo, err := domain.NewDraft(id, from, domain.MemoFields{}, at)
		require.NoError(t, err)
		fields.Subject, fields.Message = &subject, &message
		require.NoError(t, memo.Send(fields, at))
		return memo
	}

	draft, err := domain.NewDraft("v-draft", ada, domain.MemoFields{To: []string{"b@x.edu"}}, base)
	require.NoError(t, err)

	pending := send("v-pending", ada, domain.MemoFields{
		To: []string{"b@x.edu"}, Bcc: []string{"secret@x.edu"}, Approver: []string{"c@x.edu"},
	}, base.Add(time.Hour))

	approved := send("v-approved", ada, domain.MemoFields{To: []string{"b@x.edu"}, Approver: []string{"c@x.edu"}}, base.Add(2*time.Hour))
	_, err = approved.AppendMinute(domain.Identity{Email: "c@x.edu"}, "", domain.DecisionApproved, nil, base.Add(3*time.Hour))
	require.NoError(t, err)

	archived := send("v-archived", ada, domain.MemoFields{To: []string{"b@x.edu"}}, base.Add(4*time.Hour))
	archived.Archive(base.Add(5 * time.Hour))

	reviewed := send("v-reviewed", domain.Identity{Email: "d@x.edu"}, domain.MemoFields{
		To: []string{"a@x.edu"}, Cc: []string{"b@x.edu"}, Recommender: []string{"c@x.edu"},
	}, base.Add(6*time.Hour))
	require.NoError(t, reviewed.MarkReviewed(base.Add(7*time.Hour)))

	return []*domain.Memo{draft, pending, approved, archived, reviewed}
}

func memoIDs(memos []domain.Memo) []string {
	ids := make([]string, 0, len(memos))
	for _, memo := range memos {
		ids = append(ids, memo.ID)
	}
	return ids
}
