package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/memo-service/internal/domain"
	"github.com/spec-kit/memo-service/internal/events"
	"github.com/spec-kit/memo-service/internal/observability"
	"github.com/spec-kit/memo-service/internal/repository"
	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

var (
	ada   = domain.Identity{Email: "a@x.edu", Name: "Ada Initiator", Department: "Registry"}
	bola  = domain.Identity{Email: "b@x.edu", Name: "Bola Recipient"}
	cyril = domain.Identity{Email: "c@x.edu", Name: "Cyril Approver", Department: "Bursary"}
	edna  = domain.Identity{Email: "e@x.edu", Name: "Edna Approver", Department: "Senate"}
	zed   = domain.Identity{Email: "z@x.edu", Name: "Zed Stranger"}
)

type fakeDirectory map[string]domain.Identity

func (f fakeDirectory) Resolve(_ context.Context, address string) (domain.Identity, error) {
	if identity, ok := f[domain.NormalizeAddress(address)]; ok {
		return identity, nil
	}
	return domain.Identity{}, &apperrors.UnresolvedIdentityError{Address: address}
}

func (f fakeDirectory) ResolveOrRaw(ctx context.Context, address string) domain.Identity {
	identity, err := f.Resolve(ctx, address)
	if err != nil {
		return domain.RawIdentity(address)
	}
	return identity
}

type recordedEvents struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordedEvents) record(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

type fixture struct {
	svc     *MemoService
	repo    *repository.InMemoryMemoRepository
	events  *recordedEvents
	metrics *observability.Metrics
}

func newFixture(t *testing.T, wrap func(repository.MemoRepository) repository.MemoRepository) *fixture {
	t.Helper()
	repo := repository.NewInMemoryMemoRepository()
	var memos repository.MemoRepository = repo
	if wrap != nil {
		memos = wrap(repo)
	}

	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	for _, et := range []events.EventType{
		events.EventMemoCreated, events.EventMemoSent, events.EventMemoMinuteAdded,
		events.EventMemoStatusChanged, events.EventMemoForwarded, events.EventMemoArchived,
		events.EventMemoDeleted,
	} {
		dispatcher.Subscribe(et, recorded.record)
	}

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	seq := 0
	metrics := observability.NewMetrics()
	svc := NewMemoService(MemoDependencies{
		MemoRepo:   memos,
		Directory:  fakeDirectory{"c@x.edu": cyril, "e@x.edu": edna, "r@x.edu": {Email: "r@x.edu", Name: "Rita Recommender"}},
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
		IDs: func() string {
			seq++
			return fmt.Sprintf("memo-%d", seq)
		},
	})
	return &fixture{svc: svc, repo: repo, events: recorded, metrics: metrics}
}

func strPtr(s string) *string { return &s }

func budgetFields() domain.MemoFields {
	return domain.MemoFields{
		To:       []string{"b@x.edu"},
		Bcc:      []string{"secret@x.edu"},
		Approver: []string{"c@x.edu", "e@x.edu"},
		Subject:  strPtr("Budget"),
		Message:  strPtr("<p>Please approve.</p>"),
	}
}

func (f *fixture) sent(t *testing.T) *domain.Memo {
	t.Helper()
	draft, err := f.svc.CreateDraft(context.Background(), ada, domain.MemoFields{})
	require.NoError(t, err)
	memo, err := f.svc.Send(context.Background(), ada, draft.ID, budgetFields())
	require.NoError(t, err)
	return memo
}

func TestMemoService_SendThenApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)
	assert.Equal(t, domain.MemoStatusPending, memo.Status)

	memo, err := f.svc.AppendMinute(ctx, cyril, memo.ID, MinuteInput{Decision: domain.DecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, domain.MemoStatusApproved, memo.Status)
	assert.Equal(t, "Cyril Approver", memo.ApprovedByName)

	stored, err := f.repo.GetByID(ctx, memo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemoStatusApproved, stored.Status)
	assert.Len(t, stored.Minutes, 1)

	assert.Equal(t, []events.EventType{
		events.EventMemoCreated,
		events.EventMemoSent,
		events.EventMemoStatusChanged,
		events.EventMemoMinuteAdded,
		events.EventMemoStatusChanged,
	}, f.events.types)
	assert.EqualValues(t, 1, f.metrics.Snapshot().MemoOperations["minute|ok"])
}

func TestMemoService_SendWithoutRecipientsLeavesDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	draft, err := f.svc.CreateDraft(ctx, ada, domain.MemoFields{Subject: strPtr("Budget")})
	require.NoError(t, err)

	fields := budgetFields()
	fields.To = []string{}
	_, err = f.svc.Send(ctx, ada, draft.ID, fields)
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidationFailed, domainErr.Code)
	assert.Equal(t, "to", domainErr.Field())

	stored, err := f.repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemoStatusInitiated, stored.Status)
	assert.Empty(t, stored.Approver)
	assert.EqualValues(t, 1, f.metrics.Snapshot().MemoOperations["send|validation_failed"])
}

func TestMemoService_OnlyInitiatorEditsSendsAndDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	draft, err := f.svc.CreateDraft(ctx, ada, domain.MemoFields{To: []string{"b@x.edu"}})
	require.NoError(t, err)

	_, err = f.svc.UpdateDraft(ctx, bola, draft.ID, domain.MemoFields{Subject: strPtr("mine now")})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	_, err = f.svc.Send(ctx, bola, draft.ID, budgetFields())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	assert.True(t, apperrors.IsCode(f.svc.Delete(ctx, bola, draft.ID), apperrors.CodeForbidden))

	updated, err := f.svc.UpdateDraft(ctx, ada, draft.ID, domain.MemoFields{Subject: strPtr("Budget v2")})
	require.NoError(t, err)
	assert.Equal(t, "Budget v2", updated.Subject)
}

func TestMemoService_DraftsAreFrozenAfterSend(t *testing.T) {
	f := newFixture(t, nil)
	memo := f.sent(t)

	_, err := f.svc.UpdateDraft(context.Background(), ada, memo.ID, domain.MemoFields{Approver: []string{"z@x.edu"}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
}

func TestMemoService_GetProjectsBccForSenderOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)

	asSender, err := f.svc.Get(ctx, ada, memo.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"secret@x.edu"}, asSender.Recipients.Bcc)

	asRecipient, err := f.svc.Get(ctx, bola, memo.ID)
	require.NoError(t, err)
	assert.Empty(t, asRecipient.Recipients.Bcc)
	assert.Equal(t, []string{"b@x.edu"}, asRecipient.Recipients.To)

	_, err = f.svc.Get(ctx, zed, memo.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.svc.Get(ctx, ada, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestMemoService_BccMinuteDisclosesOnlyItsAuthor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)
	secret := domain.Identity{Email: "secret@x.edu"}

	_, err := f.svc.AppendMinute(ctx, secret, memo.ID, MinuteInput{Message: "<p>Seen.</p>", Decision: domain.DecisionComment})
	require.NoError(t, err)

	asRecipient, err := f.svc.Get(ctx, bola, memo.ID)
	require.NoError(t, err)
	assert.Empty(t, asRecipient.Recipients.Bcc)
	require.Len(t, asRecipient.Memo.Minutes, 1)
	assert.Equal(t, "secret@x.edu", asRecipient.Memo.Minutes[0].AuthorEmail)
}

func TestMemoService_DraftsHiddenFromRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	draft, err := f.svc.CreateDraft(ctx, ada, domain.MemoFields{To: []string{"b@x.edu"}})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, bola, draft.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestMemoService_AppendMinuteRequiresParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)

	_, err := f.svc.AppendMinute(ctx, zed, memo.ID, MinuteInput{Decision: domain.DecisionApproved})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.svc.AppendMinute(ctx, cyril, "missing", MinuteInput{Decision: domain.DecisionApproved})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	stored, err := f.repo.GetByID(ctx, memo.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Minutes)
}

func TestMemoService_ChainLatestWinsWithResolvedNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	draft, err := f.svc.CreateDraft(ctx, ada, domain.MemoFields{})
	require.NoError(t, err)
	fields := budgetFields()
	fields.Recommender = []string{"r@x.edu"}
	fields.Approver = []string{"c@x.edu", "unknown@x.edu"}
	_, err = f.svc.Send(ctx, ada, draft.ID, fields)
	require.NoError(t, err)

	_, err = f.svc.AppendMinute(ctx, cyril, draft.ID, MinuteInput{Message: "no", Decision: domain.DecisionRejected})
	require.NoError(t, err)
	_, err = f.svc.AppendMinute(ctx, cyril, draft.ID, MinuteInput{Message: "on reflection", Decision: domain.DecisionComment})
	require.NoError(t, err)

	chain, err := f.svc.Chain(ctx, bola, draft.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	assert.Equal(t, domain.ChainRoleRecommender, chain[0].Role)
	assert.Equal(t, "Rita Recommender", chain[0].Identity.Name)
	assert.Equal(t, domain.DispositionNone, chain[0].Disposition)

	assert.Equal(t, domain.DispositionCommented, chain[1].Disposition)
	assert.Equal(t, "Cyril Approver", chain[1].Identity.Name)

	assert.Equal(t, "unknown@x.edu", chain[2].Identity.Name)
	assert.Equal(t, domain.DispositionNone, chain[2].Disposition)
}

func TestMemoService_MarkReviewedAndArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)

	reviewed, err := f.svc.MarkReviewed(ctx, bola, memo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemoStatusReviewed, reviewed.Status)

	_, err = f.svc.MarkReviewed(ctx, bola, memo.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	archived, err := f.svc.Archive(ctx, bola, memo.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.Equal(t, domain.MemoStatusReviewed, archived.Status)

	inbox, err := f.svc.ListFor(ctx, bola, MemoListFilter{View: domain.ViewInbox})
	require.NoError(t, err)
	assert.Empty(t, inbox)

	archive, err := f.svc.ListFor(ctx, bola, MemoListFilter{View: domain.ViewArchived})
	require.NoError(t, err)
	require.Len(t, archive, 1)
	assert.Empty(t, archive[0].Recipients.Bcc)
}

func TestMemoService_ForwardLeavesSourceUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	source := f.sent(t)
	_, err := f.svc.AppendMinute(ctx, cyril, source.ID, MinuteInput{Decision: domain.DecisionApproved})
	require.NoError(t, err)
	before, err := f.repo.GetByID(ctx, source.ID)
	require.NoError(t, err)

	fwd, err := f.svc.Forward(ctx, bola, source.ID, domain.ForwardInput{To: []string{"g@x.edu"}, Note: "FYI"})
	require.NoError(t, err)
	assert.Equal(t, domain.MemoStatusPending, fwd.Status)
	assert.Equal(t, "Fwd: Budget", fwd.Subject)
	assert.Equal(t, "b@x.edu", fwd.From)
	assert.Empty(t, fwd.Minutes)
	require.NotNil(t, fwd.ForwardedFromID)
	assert.Equal(t, source.ID, *fwd.ForwardedFromID)

	after, err := f.repo.GetByID(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	inbox, err := f.svc.ListFor(ctx, domain.Identity{Email: "g@x.edu"}, MemoListFilter{View: domain.ViewInbox})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, fwd.ID, inbox[0].Memo.ID)

	_, err = f.svc.Forward(ctx, bola, source.ID, domain.ForwardInput{})
	assert.Equal(t, "to", apperrors.ToDomainError(err).Field())

	_, err = f.svc.Forward(ctx, zed, source.ID, domain.ForwardInput{To: []string{"g@x.edu"}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestMemoService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)

	require.NoError(t, f.svc.Delete(ctx, ada, memo.ID))
	_, err := f.svc.Get(ctx, ada, memo.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.True(t, apperrors.IsCode(f.svc.Delete(ctx, ada, memo.ID), apperrors.CodeNotFound))
}

func TestMemoService_ListForRejectsUnknownView(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ListFor(context.Background(), ada, MemoListFilter{View: domain.View("everything")})
	assert.Equal(t, "view", apperrors.ToDomainError(err).Field())
}

// racingRepo lets another writer slip in between the service's read and
// its first write.
type racingRepo struct {
	*repository.InMemoryMemoRepository
	interleave func(ctx context.Context, memoID string)
	updates    int
}

func (r *racingRepo) Update(ctx context.Context, memo *domain.Memo) error {
	r.updates++
	if r.updates == 1 && r.interleave != nil {
		r.interleave(ctx, memo.ID)
	}
	return r.InMemoryMemoRepository.Update(ctx, memo)
}

func TestMemoService_RetriesOnceAfterConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	var racer *racingRepo
	f := newFixture(t, func(inner repository.MemoRepository) repository.MemoRepository {
		racer = &racingRepo{InMemoryMemoRepository: inner.(*repository.InMemoryMemoRepository)}
		return racer
	})
	memo := f.sent(t)

	racer.updates = 0
	racer.interleave = func(ctx context.Context, memoID string) {
		other, err := f.repo.GetByID(ctx, memoID)
		require.NoError(t, err)
		_, err = other.AppendMinute(edna, "rejecting first", domain.DecisionRejected, nil, other.UpdatedAt)
		require.NoError(t, err)
		require.NoError(t, f.repo.Update(ctx, other))
	}

	updated, err := f.svc.AppendMinute(ctx, cyril, memo.ID, MinuteInput{Decision: domain.DecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, 2, racer.updates)

	require.Len(t, updated.Minutes, 2)
	assert.Equal(t, "e@x.edu", updated.Minutes[0].AuthorEmail)
	assert.Equal(t, "c@x.edu", updated.Minutes[1].AuthorEmail)
	assert.Equal(t, domain.MemoStatusApproved, updated.Status)

	stored, err := f.repo.GetByID(ctx, memo.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Minutes, 2)
}

type conflictingRepo struct {
	*repository.InMemoryMemoRepository
	updates int
}

func (r *conflictingRepo) Update(context.Context, *domain.Memo) error {
	r.updates++
	return repository.ErrVersionConflict
}

func TestMemoService_SurfacesRepeatedConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	memo := f.sent(t)

	conflicting := &conflictingRepo{InMemoryMemoRepository: f.repo}
	svc := NewMemoService(MemoDependencies{MemoRepo: conflicting})

	_, err := svc.AppendMinute(ctx, cyril, memo.ID, MinuteInput{Decision: domain.DecisionApproved})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrentModification))
	assert.Equal(t, 2, conflicting.updates)

	stored, err := f.repo.GetByID(ctx, memo.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Minutes)
	assert.Equal(t, domain.MemoStatusPending, stored.Status)
}
