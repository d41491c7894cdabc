package domain

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// ForwardPrefix marks the subject of a forwarded memo.
const ForwardPrefix = "Fwd: "

const forwardDateLayout = "Mon, Jan 2, 2006 at 3:04 PM"

// ForwardInput describes the new routing of a forwarded memo.
type ForwardInput struct {
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     string
	Recommender []string
	Approver    []string
	Note        string
	Attachment  *Attachment
}

// Forward builds a new pending memo from source, sent by forwarder. The
// source memo is only read. The original content travels as a transcript in
// the new message body.
func Forward(id string, source *Memo, forwarder Identity, in ForwardInput, now time.Time) (*Memo, error) {
	if len(in.To) == 0 {
		return nil, apperrors.NewFieldError("to", "please add at least one recipient")
	}
	from := NormalizeAddress(forwarder.Email)
	if !ValidAddress(from) {
		return nil, apperrors.NewFieldError("from", "forwarder must have a valid address")
	}
	recipients, err := BuildRecipientSet(in.To, in.Cc, in.Bcc, in.ReplyTo)
	if err != nil {
		return nil, err
	}
	recommender, err := normalizeChain("recommender", in.Recommender)
	if err != nil {
		return nil, err
	}
	approver, err := normalizeChain("approver", in.Approver)
	if err != nil {
		return nil, err
	}

	attachments := cloneAttachments(source.Attachments)
	if in.Attachment != nil {
		if err := validateAttachments([]Attachment{*in.Attachment}); err != nil {
			return nil, err
		}
		attachments = append(attachments, *in.Attachment)
	}

	sourceID := source.ID
	return &Memo{
		ID:              id,
		From:            from,
		FromName:        forwarder.DisplayName(),
		FromDept:        forwarder.Department,
		FromDesignation: forwarder.Designation,
		Recipients:      recipients,
		Recommender:     recommender,
		Approver:        approver,
		Subject:         ForwardSubject(source.Subject),
		Message:         ForwardTranscript(source, in.Note),
		IsFinancial:     source.IsFinancial,
		Attachments:     attachments,
		Status:          MemoStatusPending,
		ForwardedFromID: &sourceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ForwardSubject prefixes subject with the forward marker unless already present.
func ForwardSubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(strings.TrimSpace(ForwardPrefix))) {
		return trimmed
	}
	return ForwardPrefix + trimmed
}

// ForwardTranscript renders note, a header block describing source, and the
// original body as one payload.
func ForwardTranscript(source *Memo, note string) string {
	var b strings.Builder
	if !IsBlankRichText(note) {
		b.WriteString(note)
		b.WriteString("<br><br>")
	}
	b.WriteString("---------- Forwarded memo ----------<br>")
	b.WriteString("From: ")
	b.WriteString(html.EscapeString(source.FromName))
	b.WriteString(" &lt;")
	b.WriteString(html.EscapeString(source.From))
	b.WriteString("&gt;<br>")
	b.WriteString("Date: ")
	b.WriteString(source.CreatedAt.UTC().Format(forwardDateLayout))
	b.WriteString("<br>")
	b.WriteString("Subject: ")
	b.WriteString(html.EscapeString(source.Subject))
	b.WriteString("<br>")
	b.WriteString("To: ")
	b.WriteString(html.EscapeString(strings.Join(source.Recipients.To, ", ")))
	b.WriteString("<br><br>")
	b.WriteString(source.Message)
	return b.String()
}
