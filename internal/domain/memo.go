package domain

import (
	"strings"
	"time"

	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// MemoStatus enumerates lifecycle states for memos.
type MemoStatus string

const (
	MemoStatusInitiated MemoStatus = "initiated"
	MemoStatusPending   MemoStatus = "pending"
	MemoStatusReviewed  MemoStatus = "reviewed"
	MemoStatusApproved  MemoStatus = "approved"
)

// Valid reports whether s is a known status.
func (s MemoStatus) Valid() bool {
	switch s {
	case MemoStatusInitiated, MemoStatusPending, MemoStatusReviewed, MemoStatusApproved:
		return true
	}
	return false
}

// Attachment references an uploaded file by name and URL.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Memo is the aggregate routed through the approval workflow.
type Memo struct {
	ID              string
	From            string
	FromName        string
	FromDept        string
	FromDesignation string
	Recipients      RecipientSet
	Recommender     []string
	Approver        []string
	Subject         string
	Message         string
	IsFinancial     bool
	Attachments     []Attachment
	Status          MemoStatus
	Minutes         Ledger
	IsArchived      bool
	ApprovedByName  string
	ApprovedByDept  string
	ForwardedFromID *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MemoFields carries an edit of a draft. Nil fields are left unchanged;
// a non-nil empty slice clears the list.
type MemoFields struct {
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     *string
	Subject     *string
	Message     *string
	Recommender []string
	Approver    []string
	IsFinancial *bool
	Attachments []Attachment
}

// NewDraft creates an initiated memo owned by initiator.
func NewDraft(id string, initiator Identity, fields MemoFields, now time.Time) (*Memo, error) {
	from := NormalizeAddress(initiator.Email)
	if !ValidAddress(from) {
		return nil, apperrors.NewFieldError("from", "initiator must have a valid address")
	}
	memo := &Memo{
		ID:              id,
		From:            from,
		FromName:        initiator.DisplayName(),
		FromDept:        initiator.Department,
		FromDesignation: initiator.Designation,
		Status:          MemoStatusInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := memo.ApplyFields(fields, now); err != nil {
		return nil, err
	}
	return memo, nil
}

// ApplyFields edits the memo. Only drafts may be edited; once a memo leaves
// initiated its recipients and approval chain are frozen.
func (m *Memo) ApplyFields(fields MemoFields, now time.Time) error {
	if m.Status != MemoStatusInitiated {
		return apperrors.NewInvalidTransition(string(m.Status), string(MemoStatusInitiated))
	}

	to, cc, bcc, replyTo := m.Recipients.To, m.Recipients.Cc, m.Recipients.Bcc, m.Recipients.ReplyTo
	if fields.To != nil {
		to = fields.To
	}
	if fields.Cc != nil {
		cc = fields.Cc
	}
	if fields.Bcc != nil {
		bcc = fields.Bcc
	}
	if fields.ReplyTo != nil {
		replyTo = *fields.ReplyTo
	}
	recipients, err := BuildRecipientSet(to, cc, bcc, replyTo)
	if err != nil {
		return err
	}

	recommender := m.Recommender
	if fields.Recommender != nil {
		if recommender, err = normalizeChain("recommender", fields.Recommender); err != nil {
			return err
		}
	}
	approver := m.Approver
	if fields.Approver != nil {
		if approver, err = normalizeChain("approver", fields.Approver); err != nil {
			return err
		}
	}
	if fields.Attachments != nil {
		if err := validateAttachments(fields.Attachments); err != nil {
			return err
		}
		m.Attachments = cloneAttachments(fields.Attachments)
	}

	m.Recipients = recipients
	m.Recommender = recommender
	m.Approver = approver
	if fields.Subject != nil {
		m.Subject = strings.TrimSpace(*fields.Subject)
	}
	if fields.Message != nil {
		m.Message = *fields.Message
	}
	if fields.IsFinancial != nil {
		m.IsFinancial = *fields.IsFinancial
	}
	m.touch(now)
	return nil
}

// IsParticipant reports whether address is the sender, a recipient, or on the approval chain.
func (m *Memo) IsParticipant(address string) bool {
	address = NormalizeAddress(address)
	if address == "" {
		return false
	}
	if m.From == address || m.Recipients.Includes(address) {
		return true
	}
	return containsAddress(m.Recommender, address) || containsAddress(m.Approver, address)
}

// IsSender reports whether address initiated the memo.
func (m *Memo) IsSender(address string) bool {
	return m.From == NormalizeAddress(address)
}

// Clone returns a deep copy safe to mutate independently.
func (m *Memo) Clone() *Memo {
	if m == nil {
		return nil
	}
	out := *m
	out.Recipients = m.Recipients.clone()
	out.Recommender = cloneStrings(m.Recommender)
	out.Approver = cloneStrings(m.Approver)
	out.Attachments = cloneAttachments(m.Attachments)
	out.Minutes = m.Minutes.clone()
	if m.ForwardedFromID != nil {
		id := *m.ForwardedFromID
		out.ForwardedFromID = &id
	}
	return &out
}

func (m *Memo) touch(now time.Time) {
	m.UpdatedAt = now
}

func normalizeChain(field string, addresses []string) ([]string, error) {
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addr = NormalizeAddress(addr)
		if !ValidAddress(addr) {
			return nil, apperrors.NewValidationError(field+" contains an invalid address",
				map[string]any{"field": field, "address": addr})
		}
		if !containsAddress(out, addr) {
			out = append(out, addr)
		}
	}
	return out, nil
}

func validateAttachments(attachments []Attachment) error {
	for _, att := range attachments {
		if strings.TrimSpace(att.Name) == "" || strings.TrimSpace(att.URL) == "" {
			return apperrors.NewFieldError("attachments", "attachments need a name and url")
		}
	}
	return nil
}

func cloneAttachments(in []Attachment) []Attachment {
	if in == nil {
		return nil
	}
	return append(make([]Attachment, 0, len(in)), in...)
}
