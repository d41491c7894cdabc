package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/domain"
	"github.com/spec-kit/memo-service/internal/events"
	"github.com/spec-kit/memo-service/internal/observability"
	"github.com/spec-kit/memo-service/internal/repository"
	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// maxWriteAttempts bounds the optimistic read-modify-write loop: one retry.
const maxWriteAttempts = 2

// MemoService coordinates memo workflows.
type MemoService struct {
	memos      repository.MemoRepository
	directory  IdentityResolver
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// MemoDependencies bundles collaborators for the memo service.
type MemoDependencies struct {
	MemoRepo   repository.MemoRepository
	Directory  IdentityResolver
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
	IDs        func() string
}

// MinuteInput describes a minute to append.
type MinuteInput struct {
	Message     string
	Decision    domain.Decision
	Attachments []domain.Attachment
}

// MemoListFilter pages a view of memos.
type MemoListFilter struct {
	View   domain.View
	Limit  int
	Offset int
}

// MemoView is a memo projected for one viewer: bcc is only present for the sender.
type MemoView struct {
	Memo       *domain.Memo
	Recipients domain.VisibleRecipients
}

// ChainMember is an approval chain entry with its resolved identity.
type ChainMember struct {
	domain.ChainEntry
	Identity domain.Identity
}

// NewMemoService constructs the service.
func NewMemoService(deps MemoDependencies) *MemoService {
	s := &MemoService{
		memos:      deps.MemoRepo,
		directory:  deps.Directory,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
		newID:      deps.IDs,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// CreateDraft stores a new initiated memo owned by initiator.
func (s *MemoService) CreateDraft(ctx context.Context, initiator domain.Identity, fields domain.MemoFields) (*domain.Memo, error) {
	memo, err := domain.NewDraft(s.newID(), initiator, fields, s.now())
	if err != nil {
		s.record("create", err)
		return nil, err
	}
	if err := s.memos.Create(ctx, memo); err != nil {
		s.record("create", err)
		return nil, err
	}
	s.record("create", nil)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventMemoCreated,
		MemoID:  memo.ID,
		Actor:   memo.From,
		Payload: events.MemoCreatedPayload{Subject: memo.Subject},
	})
	return memo, nil
}

// UpdateDraft edits an initiated memo. Only the initiator may edit.
func (s *MemoService) UpdateDraft(ctx context.Context, actor domain.Identity, memoID string, fields domain.MemoFields) (*domain.Memo, error) {
	memo, err := s.mutate(ctx, memoID, func(m *domain.Memo) error {
		if !m.IsSender(actor.Email) {
			return apperrors.NewForbidden("only the initiator may edit a memo")
		}
		return m.ApplyFields(fields, s.now())
	})
	s.record("update", err)
	return memo, err
}

// Send applies the final fields and moves the draft to pending. On
// validation failure the stored memo is unchanged.
func (s *MemoService) Send(ctx context.Context, actor domain.Identity, memoID string, fields domain.MemoFields) (*domain.Memo, error) {
	memo, err := s.mutate(ctx, memoID, func(m *domain.Memo) error {
		if !m.IsSender(actor.Email) {
			return apperrors.NewForbidden("only the initiator may send a memo")
		}
		return m.Send(fields, s.now())
	})
	s.record("send", err)
	if err != nil {
		return nil, err
	}

	s.logTransition(memo.ID, domain.MemoStatusInitiated, memo.Status)
	s.publishEvent(ctx, events.Event{
		Type:   events.EventMemoSent,
		MemoID: memo.ID,
		Actor:  memo.From,
		Payload: events.MemoSentPayload{
			Subject:    memo.Subject,
			Recipients: allRecipients(memo.Recipients),
			Chain:      append(append([]string{}, memo.Recommender...), memo.Approver...),
		},
	})
	s.publishStatusChange(ctx, memo, actor.Email, domain.MemoStatusInitiated)
	return memo, nil
}

// AppendMinute records a participant's decision or comment and derives the
// memo status from it.
func (s *MemoService) AppendMinute(ctx context.Context, author domain.Identity, memoID string, input MinuteInput) (*domain.Memo, error) {
	var (
		minute    domain.Minute
		oldStatus domain.MemoStatus
	)
	memo, err := s.mutate(ctx, memoID, func(m *domain.Memo) error {
		if !m.IsParticipant(author.Email) {
			return apperrors.NewForbidden("only memo participants may add minutes")
		}
		oldStatus = m.Status
		var err error
		minute, err = m.AppendMinute(author, input.Message, input.Decision, input.Attachments, s.now())
		return err
	})
	s.record("minute", err)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:   events.EventMemoMinuteAdded,
		MemoID: memo.ID,
		Actor:  minute.AuthorEmail,
		Payload: events.MemoMinuteAddedPayload{
			Decision:    minute.Status,
			AuthorName:  minute.AuthorName,
			BodyPreview: stringPreview(minute.Message, 140),
		},
	})
	if oldStatus != memo.Status {
		s.logTransition(memo.ID, oldStatus, memo.Status)
		s.publishStatusChange(ctx, memo, minute.AuthorEmail, oldStatus)
	}
	return memo, nil
}

// MarkReviewed moves a pending memo to reviewed.
func (s *MemoService) MarkReviewed(ctx context.Context, actor domain.Identity, memoID string) (*domain.Memo, error) {
	memo, err := s.mutate(ctx, memoID, func(m *domain.Memo) error {
		if !m.IsParticipant(actor.Email) {
			return apperrors.NewForbidden("only memo participants may mark a memo reviewed")
		}
		return m.MarkReviewed(s.now())
	})
	s.record("review", err)
	if err != nil {
		return nil, err
	}
	s.logTransition(memo.ID, domain.MemoStatusPending, memo.Status)
	s.publishStatusChange(ctx, memo, actor.Email, domain.MemoStatusPending)
	return memo, nil
}

// Archive flags the memo archived. Archiving twice is harmless.
func (s *MemoService) Archive(ctx context.Context, actor domain.Identity, memoID string) (*domain.Memo, error) {
	memo, err := s.mutate(ctx, memoID, func(m *domain.Memo) error {
		if !m.IsParticipant(actor.Email) {
			return apperrors.NewForbidden("only memo participants may archive a memo")
		}
		m.Archive(s.now())
		return nil
	})
	s.record("archive", err)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:   events.EventMemoArchived,
		MemoID: memo.ID,
		Actor:  domain.NormalizeAddress(actor.Email),
	})
	return memo, nil
}

// Forward creates a new pending memo from sourceID. The source is only read.
func (s *MemoService) Forward(ctx context.Context, forwarder domain.Identity, sourceID string, input domain.ForwardInput) (*domain.Memo, error) {
	source, err := s.load(ctx, sourceID)
	if err != nil {
		s.record("forward", err)
		return nil, err
	}
	if !source.IsParticipant(forwarder.Email) {
		err = apperrors.NewForbidden("only memo participants may forward a memo")
		s.record("forward", err)
		return nil, err
	}
	memo, err := domain.Forward(s.newID(), source, forwarder, input, s.now())
	if err != nil {
		s.record("forward", err)
		return nil, err
	}
	if err := s.memos.Create(ctx, memo); err != nil {
		s.record("forward", err)
		return nil, err
	}
	s.record("forward", nil)
	s.publishEvent(ctx, events.Event{
		Type:   events.EventMemoForwarded,
		MemoID: memo.ID,
		Actor:  memo.From,
		Payload: events.MemoForwardedPayload{
			SourceID:   source.ID,
			Recipients: allRecipients(memo.Recipients),
		},
	})
	return memo, nil
}

// Delete removes a memo. Only the initiator may delete; confirmation is
// enforced by the caller.
func (s *MemoService) Delete(ctx context.Context, actor domain.Identity, memoID string) error {
	memo, err := s.load(ctx, memoID)
	if err == nil && !memo.IsSender(actor.Email) {
		err = apperrors.NewForbidden("only the initiator may delete a memo")
	}
	if err == nil {
		err = s.memos.Delete(ctx, memoID)
		if errors.Is(err, pgx.ErrNoRows) {
			err = apperrors.NewNotFound("memo", map[string]any{"id": memoID})
		}
	}
	s.record("delete", err)
	if err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:   events.EventMemoDeleted,
		MemoID: memoID,
		Actor:  domain.NormalizeAddress(actor.Email),
	})
	return nil
}

// Get returns the memo as viewer may see it.
func (s *MemoService) Get(ctx context.Context, viewer domain.Identity, memoID string) (*MemoView, error) {
	memo, err := s.visible(ctx, viewer, memoID)
	if err != nil {
		return nil, err
	}
	return &MemoView{
		Memo:       memo,
		Recipients: memo.Recipients.VisibleTo(viewer.Email, memo.From),
	}, nil
}

// Chain returns the approval chain with resolved names. Unknown addresses
// are shown as-is.
func (s *MemoService) Chain(ctx context.Context, viewer domain.Identity, memoID string) ([]ChainMember, error) {
	memo, err := s.visible(ctx, viewer, memoID)
	if err != nil {
		return nil, err
	}
	entries := memo.ApprovalChain()
	members := make([]ChainMember, 0, len(entries))
	for _, entry := range entries {
		members = append(members, ChainMember{
			ChainEntry: entry,
			Identity:   s.resolve(ctx, entry.Address),
		})
	}
	return members, nil
}

// ListFor returns one page of the viewer's memos for a view.
func (s *MemoService) ListFor(ctx context.Context, viewer domain.Identity, filter MemoListFilter) ([]MemoView, error) {
	view := filter.View
	if view == "" {
		view = domain.ViewInbox
	}
	if _, ok := domain.ParseView(string(view)); !ok {
		return nil, apperrors.NewFieldError("view", "unknown view "+string(view))
	}
	memos, err := s.memos.ListForViewer(ctx, repository.MemoFilter{
		Viewer: domain.NormalizeAddress(viewer.Email),
		View:   view,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]MemoView, 0, len(memos))
	for i := range memos {
		memo := &memos[i]
		out = append(out, MemoView{
			Memo:       memo,
			Recipients: memo.Recipients.VisibleTo(viewer.Email, memo.From),
		})
	}
	return out, nil
}

// mutate runs apply as an atomic read-modify-write. A stale write is
// retried once against a fresh copy, then reported as a concurrent
// modification.
func (s *MemoService) mutate(ctx context.Context, memoID string, apply func(*domain.Memo) error) (*domain.Memo, error) {
	for attempt := 1; ; attempt++ {
		memo, err := s.load(ctx, memoID)
		if err != nil {
			return nil, err
		}
		if err := apply(memo); err != nil {
			return nil, err
		}
		err = s.memos.Update(ctx, memo)
		switch {
		case err == nil:
			return memo, nil
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("memo", map[string]any{"id": memoID})
		case !errors.Is(err, repository.ErrVersionConflict):
			return nil, err
		}
		if attempt >= maxWriteAttempts {
			return nil, apperrors.NewConcurrentModification("memo", map[string]any{"id": memoID})
		}
		s.logger.Warn("memo version conflict; retrying", zap.String("memo_id", memoID), zap.Int("attempt", attempt))
	}
}

func (s *MemoService) load(ctx context.Context, memoID string) (*domain.Memo, error) {
	memo, err := s.memos.GetByID(ctx, memoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("memo", map[string]any{"id": memoID})
	}
	return memo, err
}

func (s *MemoService) visible(ctx context.Context, viewer domain.Identity, memoID string) (*domain.Memo, error) {
	memo, err := s.load(ctx, memoID)
	if err != nil {
		return nil, err
	}
	if !memo.IsParticipant(viewer.Email) {
		return nil, apperrors.NewForbidden("memo is not shared with you")
	}
	if memo.Status == domain.MemoStatusInitiated && !memo.IsSender(viewer.Email) {
		return nil, apperrors.NewForbidden("memo is not shared with you")
	}
	return memo, nil
}

func (s *MemoService) resolve(ctx context.Context, address string) domain.Identity {
	if s.directory == nil {
		return domain.RawIdentity(address)
	}
	return s.directory.ResolveOrRaw(ctx, address)
}

func (s *MemoService) publishStatusChange(ctx context.Context, memo *domain.Memo, actor string, oldStatus domain.MemoStatus) {
	s.publishEvent(ctx, events.Event{
		Type:   events.EventMemoStatusChanged,
		MemoID: memo.ID,
		Actor:  domain.NormalizeAddress(actor),
		Payload: events.MemoStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: memo.Status,
		},
	})
}

func (s *MemoService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (s *MemoService) logTransition(memoID string, from, to domain.MemoStatus) {
	s.logger.Info("memo status changed",
		zap.String("memo_id", memoID),
		zap.String("from_status", string(from)),
		zap.String("to_status", string(to)))
}

func (s *MemoService) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(apperrors.ToDomainError(err).Code)
	}
	s.metrics.RecordMemoOperation(op, outcome)
}

func allRecipients(r domain.RecipientSet) []string {
	out := make([]string, 0, len(r.To)+len(r.Cc)+len(r.Bcc))
	out = append(out, r.To...)
	out = append(out, r.Cc...)
	return append(out, r.Bcc...)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
