package dto

import (
	"time"

	"github.com/spec-kit/memo-service/internal/domain"
)

// AttachmentPayload references an uploaded file.
type AttachmentPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// MemoFieldsRequest is the body of create, update and send. Omitted fields
// keep their stored value; an explicit empty list clears it.
type MemoFieldsRequest struct {
	To          []string            `json:"to"`
	Cc          []string            `json:"cc"`
	Bcc         []string            `json:"bcc"`
	ReplyTo     *string             `json:"reply_to"`
	Subject     *string             `json:"subject"`
	Message     *string             `json:"message"`
	Recommender []string            `json:"recommender"`
	Approver    []string            `json:"approver"`
	IsFinancial *bool               `json:"is_financial"`
	Attachments []AttachmentPayload `json:"attachments"`
}

// Fields converts the request to a domain edit.
func (r MemoFieldsRequest) Fields() domain.MemoFields {
	return domain.MemoFields{
		To:          r.To,
		Cc:          r.Cc,
		Bcc:         r.Bcc,
		ReplyTo:     r.ReplyTo,
		Subject:     r.Subject,
		Message:     r.Message,
		Recommender: r.Recommender,
		Approver:    r.Approver,
		IsFinancial: r.IsFinancial,
		Attachments: attachments(r.Attachments),
	}
}

// CreateMinuteRequest payload.
type CreateMinuteRequest struct {
	Message     string              `json:"message"`
	Status      domain.Decision     `json:"status"`
	Attachments []AttachmentPayload `json:"attachments"`
}

// DomainAttachments converts the attached files.
func (r CreateMinuteRequest) DomainAttachments() []domain.Attachment {
	return attachments(r.Attachments)
}

// ForwardMemoRequest payload.
type ForwardMemoRequest struct {
	To          []string           `json:"to"`
	Cc          []string           `json:"cc"`
	Bcc         []string           `json:"bcc"`
	ReplyTo     string             `json:"reply_to"`
	Recommender []string           `json:"recommender"`
	Approver    []string           `json:"approver"`
	Note        string             `json:"note"`
	Attachment  *AttachmentPayload `json:"attachment"`
}

// Input converts the request to forwarding input.
func (r ForwardMemoRequest) Input() domain.ForwardInput {
	in := domain.ForwardInput{
		To:          r.To,
		Cc:          r.Cc,
		Bcc:         r.Bcc,
		ReplyTo:     r.ReplyTo,
		Recommender: r.Recommender,
		Approver:    r.Approver,
		Note:        r.Note,
	}
	if r.Attachment != nil {
		in.Attachment = &domain.Attachment{Name: r.Attachment.Name, URL: r.Attachment.URL}
	}
	return in
}

// MinuteResponse is one ledger entry.
type MinuteResponse struct {
	AuthorName  string              `json:"author_name"`
	AuthorEmail string              `json:"author_email"`
	AuthorDept  string              `json:"author_dept"`
	Message     string              `json:"message"`
	Status      domain.Decision     `json:"status"`
	Attachments []AttachmentPayload `json:"attachments"`
	CreatedAt   time.Time           `json:"created_at"`
}

// MemoSummary is a list row.
type MemoSummary struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	FromName    string            `json:"from_name"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	Status      domain.MemoStatus `json:"status"`
	IsFinancial bool              `json:"is_financial"`
	IsArchived  bool              `json:"is_archived"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MemoDetailResponse provides full memo info for one viewer.
type MemoDetailResponse struct {
	ID              string              `json:"id"`
	From            string              `json:"from"`
	FromName        string              `json:"from_name"`
	FromDept        string              `json:"from_dept"`
	FromDesignation string              `json:"from_designation"`
	To              []string            `json:"to"`
	Cc              []string            `json:"cc"`
	Bcc             []string            `json:"bcc,omitempty"`
	ReplyTo         string              `json:"reply_to,omitempty"`
	Recommender     []string            `json:"recommender"`
	Approver        []string            `json:"approver"`
	Subject         string              `json:"subject"`
	Message         string              `json:"message"`
	IsFinancial     bool                `json:"is_financial"`
	Attachments     []AttachmentPayload `json:"attachments"`
	Status          domain.MemoStatus   `json:"status"`
	Minutes         []MinuteResponse    `json:"minutes"`
	IsArchived      bool                `json:"is_archived"`
	ApprovedByName  string              `json:"approved_by_name,omitempty"`
	ApprovedByDept  string              `json:"approved_by_dept,omitempty"`
	ForwardedFromID *string             `json:"forwarded_from_id,omitempty"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ChainEntryResponse is one approval chain participant.
type ChainEntryResponse struct {
	Role        domain.ChainRole   `json:"role"`
	Address     string             `json:"address"`
	Name        string             `json:"name"`
	Department  string             `json:"department,omitempty"`
	Designation string             `json:"designation,omitempty"`
	Disposition domain.Disposition `json:"disposition"`
	Implicit    bool               `json:"implicit"`
	Latest      *MinuteResponse    `json:"latest,omitempty"`
}

// PageMeta describes a listing page.
type PageMeta struct {
	View     domain.View `json:"view"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// AttachmentsResponse converts domain attachments for output.
func AttachmentsResponse(in []domain.Attachment) []AttachmentPayload {
	out := make([]AttachmentPayload, 0, len(in))
	for _, att := range in {
		out = append(out, AttachmentPayload{Name: att.Name, URL: att.URL})
	}
	return out
}

func attachments(in []AttachmentPayload) []domain.Attachment {
	if in == nil {
		return nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, att := range in {
		out = append(out, domain.Attachment{Name: att.Name, URL: att.URL})
	}
	return out
}
