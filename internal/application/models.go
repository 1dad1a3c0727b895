package application

import (
	"time"

	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/timeseries"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// Team is a group whose members' attendance is tracked together.
type Team struct {
	ID          string
	Slug        string
	DisplayName string
	CreatedAt   time.Time
}

// UserTeam is a team listed for one of its users along with their role.
type UserTeam struct {
	Team
	Role persistence.Role
}

// Member is the caller facing view of a team member.
type Member struct {
	ID         string
	TeamID     string
	Name       string
	Archived   bool
	CreatedAt  time.Time
	AtMeeting  bool
	SignedInAt *time.Time
	// LastSeenAt is only populated by the full member listing.
	LastSeenAt *time.Time
}

// Session is a finished attendance interval.
type Session struct {
	ID        string
	MemberID  string
	StartedAt time.Time
	EndedAt   time.Time
}

// Hours returns the session length in hours.
func (s Session) Hours() float64 {
	return timeseries.Hours(s.EndedAt.Sub(s.StartedAt))
}

// CreateTeamParams wraps the data required to create a team.
type CreateTeamParams struct {
	Principal   Principal
	Slug        string
	DisplayName string
}

// AddTeamUserParams grants a user a role within a team.
type AddTeamUserParams struct {
	Principal Principal
	TeamSlug  string
	UserID    string
	Role      persistence.Role
}

// RemoveTeamUserParams revokes a user's access to a team.
type RemoveTeamUserParams struct {
	Principal Principal
	TeamSlug  string
	UserID    string
}

// CreateMemberParams wraps the data required to add a member to a team.
type CreateMemberParams struct {
	Principal Principal
	TeamSlug  string
	Name      string
}

// UpdateMemberParams renames and/or archives a member in one step. Nil
// fields are left unchanged.
type UpdateMemberParams struct {
	Principal Principal
	MemberID  string
	Name      *string
	Archived  *bool
}

// StatsQuery selects the team, range and display timezone of an analytics read.
type StatsQuery struct {
	Principal Principal
	TeamSlug  string
	Range     timeseries.Range
	// Timezone is an IANA zone name. Empty means the service default.
	Timezone string
}

// Series is a bucketed analytics result.
type Series struct {
	Period   timeseries.Period
	Timezone string
	Points   []SeriesPoint
}

// SeriesPoint is the value of one bucket.
type SeriesPoint struct {
	Start time.Time
	Value float64
}

func toTeam(t persistence.Team) Team {
	return Team{ID: t.ID, Slug: t.Slug, DisplayName: t.DisplayName, CreatedAt: t.CreatedAt}
}

func toMember(m persistence.Member) Member {
	member := Member{
		ID:        m.ID,
		TeamID:    m.TeamID,
		Name:      m.Name,
		Archived:  m.Archived,
		CreatedAt: m.CreatedAt,
		AtMeeting: m.PendingSignIn != nil,
	}
	if m.PendingSignIn != nil {
		at := *m.PendingSignIn
		member.SignedInAt = &at
	}
	return member
}

func toSession(s persistence.ClosedSession) Session {
	return Session{ID: s.ID, MemberID: s.MemberID, StartedAt: s.StartedAt, EndedAt: s.EndedAt}
}
