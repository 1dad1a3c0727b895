package persistence

import "time"

// Team groups members whose attendance is tracked together.
type Team struct {
	ID          string
	Slug        string
	DisplayName string
	CreatedAt   time.Time
}

// Role is the level of access a user holds within a team.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// TeamUser links an external user identity to a team with a role.
type TeamUser struct {
	TeamID string
	UserID string
	Role   Role
}

// UserTeam is a team seen from one of its users.
type UserTeam struct {
	Team
	Role Role
}

// Member is a person whose attendance is recorded. PendingSignIn is set while
// the member is signed in and holds the start of the open session.
type Member struct {
	ID            string
	TeamID        string
	Name          string
	Archived      bool
	CreatedAt     time.Time
	PendingSignIn *time.Time
}

// Present reports whether the member currently holds an open session.
func (m Member) Present() bool {
	return m.PendingSignIn != nil
}

// ClosedSession is a finished attendance interval.
type ClosedSession struct {
	ID        string
	MemberID  string
	StartedAt time.Time
	EndedAt   time.Time
}
