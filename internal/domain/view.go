package domain

// View selects which memos a listing returns for a viewer.
type View string

const (
	ViewInbox    View = "inbox"
	ViewSent     View = "sent"
	ViewDrafts   View = "drafts"
	ViewArchived View = "archived"
	ViewPending  View = "pending"
	ViewApproved View = "approved"
	ViewTracking View = "tracking"
)

// ParseView maps a query value to a View, defaulting to the inbox.
func ParseView(raw string) (View, bool) {
	switch View(raw) {
	case "":
		return ViewInbox, true
	case ViewInbox, ViewSent, ViewDrafts, ViewArchived, ViewPending, ViewApproved, ViewTracking:
		return View(raw), true
	}
	return "", false
}

// Receives reports whether viewer was routed the memo: a sent memo addressed
// to them or listing them on its approval chain.
func (m *Memo) Receives(viewer string) bool {
	if m.Status == MemoStatusInitiated {
		return false
	}
	viewer = NormalizeAddress(viewer)
	return m.Recipients.Includes(viewer) || containsAddress(m.Recommender, viewer) || containsAddress(m.Approver, viewer)
}

// Matches is the predicate behind each View.
func (v View) Matches(m *Memo, viewer string) bool {
	viewer = NormalizeAddress(viewer)
	involved := m.From == viewer || m.Receives(viewer)
	switch v {
	case ViewInbox:
		return !m.IsArchived && m.Receives(viewer)
	case ViewSent:
		return !m.IsArchived && m.From == viewer && m.Status != MemoStatusInitiated
	case ViewDrafts:
		return m.From == viewer && m.Status == MemoStatusInitiated
	case ViewArchived:
		return m.IsArchived && involved
	case ViewPending:
		return !m.IsArchived && involved && m.Status == MemoStatusPending
	case ViewApproved:
		return !m.IsArchived && involved && m.Status == MemoStatusApproved
	case ViewTracking:
		return !m.IsArchived && m.From == viewer &&
			m.Status != MemoStatusInitiated && m.Status != MemoStatusApproved
	}
	return false
}
