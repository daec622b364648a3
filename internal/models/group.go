package models

// Group represents a rotating-savings group. New groups start pending and
// must be approved by a site administrator before members can join.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Code is a short human-readable join code, unique across groups.
	// It is a lookup key only; all references use ID.
	Code string

	// Name is the display name of the group.
	Name string

	Status Status

	// CreatedBy is the user who created the group. The creator is the
	// group's leader once the group is approved.
	CreatedBy string

	// DecidedBy is the site admin who approved or rejected the group.
	DecidedBy string

	// Reason is the rejection reason, empty unless rejected.
	Reason string

	// CreatedAt and DecidedAt are Unix timestamps.
	CreatedAt int64
	DecidedAt int64

	// Version increments on every committed status change.
	Version int64
}

func (g *Group) EntityType() EntityType { return EntityGroup }
func (g *Group) EntityID() string       { return g.ID }
func (g *Group) GroupRef() string       { return g.ID }
func (g *Group) RequestedBy() string    { return g.CreatedBy }
func (g *Group) CurrentStatus() Status  { return g.Status }
func (g *Group) CurrentVersion() int64  { return g.Version }

func (g *Group) Apply(status Status, decidedBy string, decidedAt int64, p TransitionPayload) Entity {
	next := *g
	next.Status = status
	next.DecidedBy = decidedBy
	next.DecidedAt = decidedAt
	next.Reason = p.Reason
	next.Version = g.Version + 1
	return &next
}

// LeaderID is the user who leads the group. The creator leads.
func (g *Group) LeaderID() string { return g.CreatedBy }
