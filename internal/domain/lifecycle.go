package domain

import (
	"time"

	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// Send applies fields to a draft and moves it to pending. Validation fails
// closed: on any error the memo is left exactly as it was.
func (m *Memo) Send(fields MemoFields, now time.Time) error {
	if m.Status != MemoStatusInitiated {
		return apperrors.NewInvalidTransition(string(m.Status), string(MemoStatusPending))
	}
	next := m.Clone()
	if err := next.ApplyFields(fields, now); err != nil {
		return err
	}
	if err := next.readyToSend(); err != nil {
		return err
	}
	next.Status = MemoStatusPending
	*m = *next
	return nil
}

// readyToSend reports the first missing field that blocks sending.
func (m *Memo) readyToSend() error {
	if len(m.Recipients.To) == 0 {
		return apperrors.NewFieldError("to", "please add at least one recipient")
	}
	if m.Subject == "" {
		return apperrors.NewFieldError("subject", "please enter a subject")
	}
	if IsBlankRichText(m.Message) {
		return apperrors.NewFieldError("message", "please enter a message")
	}
	return nil
}

// AppendMinute records a minute and derives the new status from it:
// approved closes the memo, rejected re-opens it as pending, comment leaves
// the status alone. Any single approval closes the memo. Decisions by
// anyone who cannot decide (see Decides) are recorded but advisory.
func (m *Memo) AppendMinute(author Identity, message string, decision Decision, attachments []Attachment, now time.Time) (Minute, error) {
	if m.Status == MemoStatusInitiated {
		return Minute{}, apperrors.NewInvalidTransition(string(m.Status), "minuted")
	}
	minute, err := NewMinute(author, message, decision, attachments, now)
	if err != nil {
		return Minute{}, err
	}
	m.Minutes = m.Minutes.Append(minute)
	m.touch(now)
	if !m.Decides(minute.AuthorEmail) {
		return minute, nil
	}
	switch decision {
	case DecisionApproved:
		m.Status = MemoStatusApproved
		m.ApprovedByName = minute.AuthorName
		m.ApprovedByDept = minute.AuthorDept
	case DecisionRejected:
		m.Status = MemoStatusPending
	}
	return minute, nil
}

// Decides reports whether address's approvals and rejections move the
// status: any configured approver, or any participant when the memo has no
// approvers.
func (m *Memo) Decides(address string) bool {
	address = NormalizeAddress(address)
	if len(m.Approver) == 0 {
		return m.IsParticipant(address)
	}
	return containsAddress(m.Approver, address)
}

// MarkReviewed is the administrative pending -> reviewed shortcut.
func (m *Memo) MarkReviewed(now time.Time) error {
	if m.Status != MemoStatusPending {
		return apperrors.NewInvalidTransition(string(m.Status), string(MemoStatusReviewed))
	}
	m.Status = MemoStatusReviewed
	m.touch(now)
	return nil
}

// Archive flags the memo as archived. There is no way back.
func (m *Memo) Archive(now time.Time) {
	m.IsArchived = true
	m.touch(now)
}
