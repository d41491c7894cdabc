package domain

// Disposition is a chain participant's current stance, derived from the ledger.
type Disposition string

const (
	DispositionNone      Disposition = "none"
	DispositionApproved  Disposition = "approved"
	DispositionRejected  Disposition = "rejected"
	DispositionCommented Disposition = "commented"
)

// ChainRole distinguishes recommenders from approvers.
type ChainRole string

const (
	ChainRoleRecommender ChainRole = "recommender"
	ChainRoleApprover    ChainRole = "approver"
)

// ChainEntry is one participant of the approval chain with their disposition.
type ChainEntry struct {
	Role        ChainRole
	Address     string
	Disposition Disposition
	Latest      *Minute
	// Implicit marks the final approver of an approved memo shown as approver
	// although they never wrote a minute (records predating per-approver minutes).
	Implicit bool
}

// DispositionOf returns the status of address's latest minute (latest wins).
func (m *Memo) DispositionOf(address string) Disposition {
	minute, ok := m.Minutes.LatestFor(address)
	if !ok {
		return DispositionNone
	}
	return dispositionFor(minute.Status)
}

// ApprovalChain lists recommenders then approvers in configured order. The
// order is advisory: nobody has to wait for anybody.
func (m *Memo) ApprovalChain() []ChainEntry {
	entries := make([]ChainEntry, 0, len(m.Recommender)+len(m.Approver))
	for _, addr := range m.Recommender {
		entries = append(entries, m.chainEntry(ChainRoleRecommender, addr))
	}
	for i, addr := range m.Approver {
		entry := m.chainEntry(ChainRoleApprover, addr)
		if i == len(m.Approver)-1 && m.Status == MemoStatusApproved && entry.Latest == nil {
			entry.Disposition = DispositionApproved
			entry.Implicit = true
		}
		entries = append(entries, entry)
	}
	return entries
}

func (m *Memo) chainEntry(role ChainRole, address string) ChainEntry {
	entry := ChainEntry{Role: role, Address: address, Disposition: DispositionNone}
	if minute, ok := m.Minutes.LatestFor(address); ok {
		latest := minute
		entry.Latest = &latest
		entry.Disposition = dispositionFor(minute.Status)
	}
	return entry
}

func dispositionFor(d Decision) Disposition {
	switch d {
	case DecisionApproved:
		return DispositionApproved
	case DecisionRejected:
		return DispositionRejected
	case DecisionComment:
		return DispositionCommented
	default:
		return DispositionNone
	}
}
