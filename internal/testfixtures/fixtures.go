package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/team-hours/internal/persistence"
)

var (
	teamCounter    uint64
	memberCounter  uint64
	sessionCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Team fixtures -----------------------------

// TeamFixture represents a deterministic team with its owning user.
type TeamFixture struct {
	ID          string
	Slug        string
	DisplayName string
	OwnerID     string
	CreatedAt   time.Time
}

// TeamOption configures the generated team fixture.
type TeamOption func(*TeamFixture)

// NewTeamFixture returns a deterministic team fixture with optional overrides.
func NewTeamFixture(opts ...TeamOption) TeamFixture {
	idx := atomic.AddUint64(&teamCounter, 1)
	fixture := TeamFixture{
		ID:          fmt.Sprintf("team-%03d", idx),
		Slug:        fmt.Sprintf("team-%03d", idx),
		DisplayName: fmt.Sprintf("Team %03d", idx),
		OwnerID:     "owner",
		CreatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTeamID overrides the generated team ID.
func WithTeamID(id string) TeamOption {
	return func(f *TeamFixture) {
		f.ID = id
	}
}

// WithTeamSlug overrides the generated slug.
func WithTeamSlug(slug string) TeamOption {
	return func(f *TeamFixture) {
		f.Slug = slug
	}
}

// WithTeamOwner overrides the owning user.
func WithTeamOwner(userID string) TeamOption {
	return func(f *TeamFixture) {
		f.OwnerID = userID
	}
}

// Persistence converts the fixture into the stored team and owner rows.
func (f TeamFixture) Persistence() (persistence.Team, persistence.TeamUser) {
	return persistence.Team{
			ID:          f.ID,
			Slug:        f.Slug,
			DisplayName: f.DisplayName,
			CreatedAt:   f.CreatedAt,
		}, persistence.TeamUser{
			TeamID: f.ID,
			UserID: f.OwnerID,
			Role:   persistence.RoleOwner,
		}
}

// ---------------------------- Member fixtures ----------------------------

// MemberFixture represents a deterministic team member.
type MemberFixture struct {
	ID            string
	TeamID        string
	Name          string
	Archived      bool
	CreatedAt     time.Time
	PendingSignIn *time.Time
}

// MemberOption configures the generated member fixture.
type MemberOption func(*MemberFixture)

// NewMemberFixture returns a member of teamID with optional overrides.
func NewMemberFixture(teamID string, opts ...MemberOption) MemberFixture {
	idx := atomic.AddUint64(&memberCounter, 1)
	fixture := MemberFixture{
		ID:        fmt.Sprintf("member-%03d", idx),
		TeamID:    teamID,
		Name:      fmt.Sprintf("Member %03d", idx),
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMemberID overrides the generated member ID.
func WithMemberID(id string) MemberOption {
	return func(f *MemberFixture) {
		f.ID = id
	}
}

// WithMemberName overrides the generated name.
func WithMemberName(name string) MemberOption {
	return func(f *MemberFixture) {
		f.Name = name
	}
}

// WithMemberArchived marks the member archived.
func WithMemberArchived() MemberOption {
	return func(f *MemberFixture) {
		f.Archived = true
	}
}

// WithMemberSignedIn gives the member an open session started at t.
func WithMemberSignedIn(t time.Time) MemberOption {
	return func(f *MemberFixture) {
		f.PendingSignIn = &t
	}
}

// Persistence converts the fixture into a persistence member.
func (f MemberFixture) Persistence() persistence.Member {
	member := persistence.Member{
		ID:        f.ID,
		TeamID:    f.TeamID,
		Name:      f.Name,
		Archived:  f.Archived,
		CreatedAt: f.CreatedAt,
	}
	if f.PendingSignIn != nil {
		at := *f.PendingSignIn
		member.PendingSignIn = &at
	}
	return member
}

// ---------------------------- Session fixtures ---------------------------

// NewClosedSession returns a closed session of memberID spanning [start, start+d].
func NewClosedSession(memberID string, start time.Time, d time.Duration) persistence.ClosedSession {
	idx := atomic.AddUint64(&sessionCounter, 1)
	return persistence.ClosedSession{
		ID:        fmt.Sprintf("session-%03d", idx),
		MemberID:  memberID,
		StartedAt: start,
		EndedAt:   start.Add(d),
	}
}

// ------------------------------- Seeding ---------------------------------

// SeedTeam stores the team fixture and fails the test on error.
func SeedTeam(tb testing.TB, store persistence.TeamRepository, fixture TeamFixture) persistence.Team {
	tb.Helper()
	team, owner := fixture.Persistence()
	if err := store.CreateTeam(context.Background(), team, owner); err != nil {
		tb.Fatalf("seed team %s: %v", team.Slug, err)
	}
	return team
}

// SeedMember stores the member fixture and fails the test on error.
func SeedMember(tb testing.TB, store persistence.MemberRepository, fixture MemberFixture) persistence.Member {
	tb.Helper()
	member := fixture.Persistence()
	if err := store.CreateMember(context.Background(), member); err != nil {
		tb.Fatalf("seed member %s: %v", member.Name, err)
	}
	return member
}

// SeedSession stores a closed session and fails the test on error.
func SeedSession(tb testing.TB, store persistence.SessionRepository, session persistence.ClosedSession) persistence.ClosedSession {
	tb.Helper()
	if err := store.InsertClosedSession(context.Background(), session); err != nil {
		tb.Fatalf("seed session %s: %v", session.ID, err)
	}
	return session
}

// SeedTeamUser grants userID a role in the team and fails the test on error.
func SeedTeamUser(tb testing.TB, store persistence.TeamRepository, teamID, userID string, role persistence.Role) {
	tb.Helper()
	if err := store.UpsertTeamUser(context.Background(), persistence.TeamUser{TeamID: teamID, UserID: userID, Role: role}); err != nil {
		tb.Fatalf("seed team user %s: %v", userID, err)
	}
}
