package persistence

import (
	"context"
	"time"
)

// MemberCondition is the predicate a conditional member update is applied
// under. Zero-value fields impose no restriction.
type MemberCondition struct {
	// SignedOut requires pending_sign_in to be unset.
	SignedOut bool
	// SignedInAt requires pending_sign_in to equal the given instant.
	SignedInAt *time.Time
	// NotArchived requires the member to be active.
	NotArchived bool
}

// MemberPatch lists the columns a conditional update writes. Nil fields are left untouched.
type MemberPatch struct {
	Name               *string
	Archived           *bool
	PendingSignIn      *time.Time
	ClearPendingSignIn bool
}

// SessionFilter narrows closed session queries. Bounds are exclusive.
type SessionFilter struct {
	TeamID       string
	MemberID     string
	StartedAfter *time.Time
	EndedBefore  *time.Time
}

// OpenSessionFilter narrows queries over members holding an open session.
type OpenSessionFilter struct {
	TeamID       string
	StartedAfter *time.Time
}

// TeamRepository stores teams and the users that can access them.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team Team, owner TeamUser) error
	GetTeam(ctx context.Context, id string) (Team, error)
	GetTeamBySlug(ctx context.Context, slug string) (Team, error)
	CountOwnedTeams(ctx context.Context, userID string) (int, error)
	GetTeamUser(ctx context.Context, teamID, userID string) (TeamUser, error)
	UpsertTeamUser(ctx context.Context, user TeamUser) error
	// DeleteTeamUser revokes a user's access. ErrNotFound is returned when
	// the user holds no role in the team.
	DeleteTeamUser(ctx context.Context, teamID, userID string) error
	// ListTeamsForUser returns the teams userID holds a role in, ordered by
	// display name.
	ListTeamsForUser(ctx context.Context, userID string) ([]UserTeam, error)
}

// MemberRepository stores members and their open session state.
type MemberRepository interface {
	CreateMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, id string) (Member, error)
	ListMembers(ctx context.Context, teamID string, includeArchived bool) ([]Member, error)
	CountMembers(ctx context.Context, teamID string) (int, error)
	// UpdateMember applies patch only when the row matches cond and reports
	// the number of rows changed.
	UpdateMember(ctx context.Context, id string, cond MemberCondition, patch MemberPatch) (int64, error)
	// DeleteMember removes the member and returns its team id. ErrNotFound
	// is returned when no such member exists.
	DeleteMember(ctx context.Context, id string) (string, error)
}

// SessionRepository stores closed sessions and queries open ones.
type SessionRepository interface {
	InsertClosedSession(ctx context.Context, session ClosedSession) error
	ListClosedSessions(ctx context.Context, filter SessionFilter) ([]ClosedSession, error)
	DeleteClosedSessionsForMember(ctx context.Context, memberID string) (int64, error)
	// ListOpenSessions returns members that are currently signed in.
	ListOpenSessions(ctx context.Context, filter OpenSessionFilter) ([]Member, error)
	// LastSessionEnds returns the latest ended_at for each member of the team
	// that has at least one closed session.
	LastSessionEnds(ctx context.Context, teamID string) (map[string]time.Time, error)
}

// Repositories is the set of operations available inside and outside a transaction.
type Repositories interface {
	TeamRepository
	MemberRepository
	SessionRepository
}

// TxFunc runs inside a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the storage adapter used by the application services. Reads
// inside WithinTx observe a consistent snapshot and writes commit atomically.
//
// WithinReadTx runs fn against the latest committed snapshot without waiting
// for writers. fn must not write; stores may reject writes with ErrReadOnly.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn TxFunc) error
	WithinReadTx(ctx context.Context, fn TxFunc) error
}
