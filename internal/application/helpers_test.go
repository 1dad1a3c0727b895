package application_test

import (
	"testing"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/persistence/memory"
	"github.com/example/team-hours/internal/testfixtures"
)

var owner = application.Principal{UserID: "owner"}

type env struct {
	factory *testfixtures.ServiceFactory
	store   *memory.Storage
	team    persistence.Team
}

func newEnv(t *testing.T, opts ...testfixtures.ServiceFactoryOption) *env {
	t.Helper()
	store := memory.New()
	return &env{
		factory: testfixtures.NewServiceFactory(opts...),
		store:   store,
		team:    testfixtures.SeedTeam(t, store, testfixtures.NewTeamFixture(testfixtures.WithTeamOwner(owner.UserID))),
	}
}

func (e *env) member(t *testing.T, opts ...testfixtures.MemberOption) persistence.Member {
	t.Helper()
	return testfixtures.SeedMember(t, e.store, testfixtures.NewMemberFixture(e.team.ID, opts...))
}

// untouchableStore panics on any use. Services that reject a call before
// reaching storage can be given one.
type untouchableStore struct {
	persistence.Store
}

// backends lists the store implementations that tests exercising
// concurrent transactions run against.
var backends = map[string]func(t *testing.T) persistence.Store{
	"memory": func(*testing.T) persistence.Store { return memory.New() },
	"sqlite": func(t *testing.T) persistence.Store { return testfixtures.NewSQLiteHarness(t) },
}

// seedBackend stores a team owned by owner and returns it.
func seedBackend(t *testing.T, store persistence.Store) persistence.Team {
	t.Helper()
	return testfixtures.SeedTeam(t, store, testfixtures.NewTeamFixture(testfixtures.WithTeamOwner(owner.UserID)))
}
