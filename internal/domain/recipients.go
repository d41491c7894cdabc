package domain

import (
	"strings"

	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// RecipientKind names one of the address lists of a memo.
type RecipientKind string

const (
	RecipientTo  RecipientKind = "to"
	RecipientCc  RecipientKind = "cc"
	RecipientBcc RecipientKind = "bcc"
)

// RecipientSet holds the to/cc/bcc lists and an optional reply-to override.
// An address never appears in both To and Bcc.
type RecipientSet struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Bcc     []string `json:"bcc"`
	ReplyTo string   `json:"replyTo,omitempty"`
}

// VisibleRecipients is what a particular viewer may see of a RecipientSet.
type VisibleRecipients struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Bcc     []string `json:"bcc,omitempty"`
	ReplyTo string   `json:"replyTo,omitempty"`
}

// NormalizeAddress trims and lowercases an address for comparison and storage.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidAddress reports whether address has a local part and a domain.
func ValidAddress(address string) bool {
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return false
	}
	return !strings.ContainsAny(address, " \t\r\n,;")
}

// AddTo appends address to To. Adding an address already present is a no-op.
func (r *RecipientSet) AddTo(address string) error {
	return r.add(RecipientTo, address)
}

// AddCc appends address to Cc. Adding an address already present is a no-op.
func (r *RecipientSet) AddCc(address string) error {
	return r.add(RecipientCc, address)
}

// AddBcc appends address to Bcc. Adding an address already present is a no-op.
func (r *RecipientSet) AddBcc(address string) error {
	return r.add(RecipientBcc, address)
}

// Remove drops address from the given list; absent addresses are ignored.
func (r *RecipientSet) Remove(kind RecipientKind, address string) {
	list := r.list(kind)
	if list == nil {
		return
	}
	address = NormalizeAddress(address)
	out := (*list)[:0]
	for _, existing := range *list {
		if existing != address {
			out = append(out, existing)
		}
	}
	*list = out
}

// SetReplyTo sets or clears (empty string) the reply-to override.
func (r *RecipientSet) SetReplyTo(address string) error {
	address = NormalizeAddress(address)
	if address != "" && !ValidAddress(address) {
		return apperrors.NewFieldError("replyTo", "replyTo is not a valid address")
	}
	r.ReplyTo = address
	return nil
}

// Contains reports whether address appears in the given list.
func (r *RecipientSet) Contains(kind RecipientKind, address string) bool {
	list := r.list(kind)
	if list == nil {
		return false
	}
	return containsAddress(*list, NormalizeAddress(address))
}

// Includes reports whether address appears in any list.
func (r *RecipientSet) Includes(address string) bool {
	return r.Contains(RecipientTo, address) || r.Contains(RecipientCc, address) || r.Contains(RecipientBcc, address)
}

// VisibleTo projects the set for viewer. Bcc is only returned to the sender.
func (r *RecipientSet) VisibleTo(viewer, sender string) VisibleRecipients {
	out := VisibleRecipients{
		To:      append([]string{}, r.To...),
		Cc:      append([]string{}, r.Cc...),
		ReplyTo: r.ReplyTo,
	}
	if viewer != "" && NormalizeAddress(viewer) == NormalizeAddress(sender) {
		out.Bcc = append([]string{}, r.Bcc...)
	}
	return out
}

// BuildRecipientSet validates and deduplicates the provided lists.
func BuildRecipientSet(to, cc, bcc []string, replyTo string) (RecipientSet, error) {
	var set RecipientSet
	for _, addr := range to {
		if err := set.AddTo(addr); err != nil {
			return RecipientSet{}, err
		}
	}
	for _, addr := range cc {
		if err := set.AddCc(addr); err != nil {
			return RecipientSet{}, err
		}
	}
	for _, addr := range bcc {
		if err := set.AddBcc(addr); err != nil {
			return RecipientSet{}, err
		}
	}
	if err := set.SetReplyTo(replyTo); err != nil {
		return RecipientSet{}, err
	}
	return set, nil
}

func (r *RecipientSet) add(kind RecipientKind, address string) error {
	address = NormalizeAddress(address)
	if !ValidAddress(address) {
		return apperrors.NewValidationError(string(kind)+" contains an invalid address",
			map[string]any{"field": string(kind), "address": address})
	}
	switch kind {
	case RecipientTo:
		if containsAddress(r.Bcc, address) {
			return apperrors.NewValidationError("address cannot be in both to and bcc",
				map[string]any{"field": string(kind), "address": address})
		}
	case RecipientBcc:
		if containsAddress(r.To, address) {
			return apperrors.NewValidationError("address cannot be in both to and bcc",
				map[string]any{"field": string(kind), "address": address})
		}
	}
	list := r.list(kind)
	if containsAddress(*list, address) {
		return nil
	}
	*list = append(*list, address)
	return nil
}

func (r *RecipientSet) list(kind RecipientKind) *[]string {
	switch kind {
	case RecipientTo:
		return &r.To
	case RecipientCc:
		return &r.Cc
	case RecipientBcc:
		return &r.Bcc
	default:
		return nil
	}
}

func (r RecipientSet) clone() RecipientSet {
	return RecipientSet{
		To:      cloneStrings(r.To),
		Cc:      cloneStrings(r.Cc),
		Bcc:     cloneStrings(r.Bcc),
		ReplyTo: r.ReplyTo,
	}
}

func containsAddress(list []string, address string) bool {
	for _, existing := range list {
		if existing == address {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
