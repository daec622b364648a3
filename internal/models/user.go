package models

// Role is a site-wide role attached to a user account. Group leadership
// is a relationship to a specific group, not a role: a user with
// RoleGroupLeader still only leads the groups they created.
type Role string

const (
	RoleMember      Role = "member"
	RoleGroupLeader Role = "group_leader"
	RoleSiteAdmin   Role = "site_admin"
)

// User represents a registered user account.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Email is the user's email address (unique), used for login.
	Email string

	// DisplayName is the name shown to other members.
	DisplayName string

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string

	Role Role

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64
}

// Identity is the authenticated caller for the duration of a request,
// supplied by the auth collaborator.
type Identity struct {
	UserID string
	Role   Role
}
