package domain

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"

	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// Decision is the kind of a minute.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionComment  Decision = "comment"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionComment:
		return true
	}
	return false
}

// Minute is one immutable decision or comment on a memo.
type Minute struct {
	AuthorName  string       `json:"authorName"`
	AuthorEmail string       `json:"authorEmail"`
	AuthorDept  string       `json:"authorDept"`
	Message     string       `json:"message"`
	Status      Decision     `json:"status"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Ledger is the append-only minute trail of a memo, oldest first.
type Ledger []Minute

// NewMinute validates the input and builds a minute authored by author.
// A message is required for comments and optional for decisions.
func NewMinute(author Identity, message string, decision Decision, attachments []Attachment, now time.Time) (Minute, error) {
	email := NormalizeAddress(author.Email)
	if !ValidAddress(email) {
		return Minute{}, apperrors.NewFieldError("author", "minute author must have a valid address")
	}
	if !decision.Valid() {
		return Minute{}, apperrors.NewFieldError("status", "status must be one of approved, rejected, comment")
	}
	if decision == DecisionComment && IsBlankRichText(message) {
		return Minute{}, apperrors.NewFieldError("message", "please enter a minute")
	}
	if err := validateAttachments(attachments); err != nil {
		return Minute{}, err
	}
	return Minute{
		AuthorName:  author.DisplayName(),
		AuthorEmail: email,
		AuthorDept:  author.Department,
		Message:     message,
		Status:      decision,
		Attachments: cloneAttachments(attachments),
		CreatedAt:   now,
	}, nil
}

// Append adds m at the end of the ledger.
func (l Ledger) Append(m Minute) Ledger {
	return append(l, m)
}

// LatestFor returns the most recently appended minute written by address.
func (l Ledger) LatestFor(address string) (Minute, bool) {
	address = NormalizeAddress(address)
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].AuthorEmail == address {
			return l[i], true
		}
	}
	return Minute{}, false
}

func (l Ledger) clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for i, m := range l {
		m.Attachments = cloneAttachments(m.Attachments)
		out[i] = m
	}
	return out
}

// IsBlankRichText reports whether a rich text payload has no visible text,
// e.g. an editor's empty "<p><br></p>". Markup, comments and whitespace
// entities do not count as text.
func IsBlankRichText(payload string) bool {
	tokenizer := html.NewTokenizerFragment(strings.NewReader(payload), "body")
	skip := ""
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return true // io.EOF; the tokenizer never fails on a string reader
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip = tag
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == skip {
				skip = ""
			}
		case html.TextToken:
			if skip == "" && !blankText(string(tokenizer.Text())) {
				return false
			}
		}
	}
}

// blankText trims decoded text. Named references are case-sensitive, so an
// editor's "&NBSP;" survives the tokenizer and gets a second, lowercased pass.
func blankText(text string) bool {
	if strings.ContainsRune(text, '&') {
		text = html.UnescapeString(strings.ToLower(text))
	}
	return strings.TrimFunc(text, unicode.IsSpace) == ""
}
