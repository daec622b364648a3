package models

// Membership is a user's join request to a group, unique per
// (group, user). The group leader approves or rejects it; an approved
// membership can later be removed.
type Membership struct {
	// ID is the unique identifier for the membership (UUID format).
	// The (GroupID, UserID) pair is also unique.
	ID string

	GroupID string
	UserID  string

	Status Status

	// DecidedBy is the leader or admin who decided the request, empty
	// while pending.
	DecidedBy string

	// Reason is the rejection/removal reason, if any.
	Reason string

	RequestedAt int64
	DecidedAt   int64

	Version int64
}

func (m *Membership) EntityType() EntityType { return EntityMembership }
func (m *Membership) EntityID() string       { return m.ID }
func (m *Membership) GroupRef() string       { return m.GroupID }
func (m *Membership) RequestedBy() string    { return m.UserID }
func (m *Membership) CurrentStatus() Status  { return m.Status }
func (m *Membership) CurrentVersion() int64  { return m.Version }

func (m *Membership) Apply(status Status, decidedBy string, decidedAt int64, p TransitionPayload) Entity {
	next := *m
	next.Status = status
	next.DecidedBy = decidedBy
	next.DecidedAt = decidedAt
	next.Reason = p.Reason
	next.Version = m.Version + 1
	return &next
}
