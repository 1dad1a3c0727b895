package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/persistence/memory"
	"github.com/example/team-hours/internal/testfixtures"
)

func TestCreateTeam(t *testing.T) {
	factory := testfixtures.NewServiceFactory()
	store := memory.New()
	svc := factory.NewTeamService(store)
	ctx := context.Background()
	creator := application.Principal{UserID: "creator"}

	team, err := svc.CreateTeam(ctx, application.CreateTeamParams{Principal: creator, Slug: "robotics", DisplayName: " Robotics Club "})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if team.Slug != "robotics" || team.DisplayName != "Robotics Club" || team.ID == "" {
		t.Fatalf("unexpected team %+v", team)
	}

	tu, err := store.GetTeamUser(ctx, team.ID, creator.UserID)
	if err != nil || tu.Role != persistence.RoleOwner {
		t.Fatalf("expected creator to own the team: %+v err=%v", tu, err)
	}

	_, err = svc.CreateTeam(ctx, application.CreateTeamParams{Principal: creator, Slug: "robotics", DisplayName: "Again"})
	if !errors.Is(err, application.ErrConflict) {
		t.Fatalf("expected slug conflict, got %v", err)
	}
}

func TestCreateTeamValidation(t *testing.T) {
	svc := testfixtures.NewServiceFactory().NewTeamService(memory.New())
	creator := application.Principal{UserID: "creator"}

	tests := []struct {
		name   string
		params application.CreateTeamParams
		field  string
	}{
		{name: "uppercase slug", params: application.CreateTeamParams{Principal: creator, Slug: "Robotics", DisplayName: "R"}, field: "slug"},
		{name: "trailing hyphen", params: application.CreateTeamParams{Principal: creator, Slug: "robotics-", DisplayName: "R"}, field: "slug"},
		{name: "missing display name", params: application.CreateTeamParams{Principal: creator, Slug: "robotics"}, field: "displayName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTeam(context.Background(), tt.params)
			var vErr *application.ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tt.field] == "" {
				t.Fatalf("expected %s validation error, got %v", tt.field, err)
			}
		})
	}
}

func TestCreateTeamOwnershipLimit(t *testing.T) {
	svc := testfixtures.NewServiceFactory().NewTeamService(memory.New())
	creator := application.Principal{UserID: "creator"}
	ctx := context.Background()

	for i := 0; i < application.MaxTeamsPerUser; i++ {
		if _, err := svc.CreateTeam(ctx, application.CreateTeamParams{Principal: creator, Slug: fmt.Sprintf("team-%d", i), DisplayName: "Team"}); err != nil {
			t.Fatalf("CreateTeam %d: %v", i, err)
		}
	}
	_, err := svc.CreateTeam(ctx, application.CreateTeamParams{Principal: creator, Slug: "one-more", DisplayName: "Team"})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["team"] == "" {
		t.Fatalf("expected ownership limit error, got %v", err)
	}
}

func TestAddTeamUser(t *testing.T) {
	e := newEnv(t)
	svc := e.factory.NewTeamService(e.store)
	ctx := context.Background()

	err := svc.AddTeamUser(ctx, application.AddTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: "viewer", Role: persistence.RoleViewer})
	if err != nil {
		t.Fatalf("AddTeamUser: %v", err)
	}
	err = svc.AddTeamUser(ctx, application.AddTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: "viewer", Role: persistence.RoleEditor})
	if err != nil {
		t.Fatalf("AddTeamUser role change: %v", err)
	}
	tu, err := e.store.GetTeamUser(ctx, e.team.ID, "viewer")
	if err != nil || tu.Role != persistence.RoleEditor {
		t.Fatalf("expected editor role, got %+v err=%v", tu, err)
	}

	err = svc.AddTeamUser(ctx, application.AddTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: owner.UserID, Role: persistence.RoleViewer})
	if !errors.Is(err, application.ErrConflict) {
		t.Fatalf("expected conflict changing the owner, got %v", err)
	}

	err = svc.AddTeamUser(ctx, application.AddTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: "x", Role: persistence.RoleOwner})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["role"] == "" {
		t.Fatalf("expected role validation error, got %v", err)
	}
}

func TestRemoveTeamUser(t *testing.T) {
	e := newEnv(t)
	testfixtures.SeedTeamUser(t, e.store, e.team.ID, "editor", persistence.RoleEditor)
	svc := e.factory.NewTeamService(e.store)
	ctx := context.Background()

	role, err := svc.GetTeamUserRole(ctx, owner, e.team.Slug, "editor")
	if err != nil || role != persistence.RoleEditor {
		t.Fatalf("GetTeamUserRole: role=%q err=%v", role, err)
	}

	if err := svc.RemoveTeamUser(ctx, application.RemoveTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: "editor"}); err != nil {
		t.Fatalf("RemoveTeamUser: %v", err)
	}
	if _, err := svc.GetTeamUserRole(ctx, owner, e.team.Slug, "editor"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
	if err := svc.RemoveTeamUser(ctx, application.RemoveTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: "editor"}); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing twice, got %v", err)
	}

	err = svc.RemoveTeamUser(ctx, application.RemoveTeamUserParams{Principal: owner, TeamSlug: e.team.Slug, UserID: owner.UserID})
	var conflict *application.ConflictError
	if !errors.As(err, &conflict) || conflict.Message != "the team owner cannot be removed" {
		t.Fatalf("expected owner removal conflict, got %v", err)
	}
	if _, err := e.store.GetTeamUser(ctx, e.team.ID, owner.UserID); err != nil {
		t.Fatalf("owner must keep access, got %v", err)
	}
}

func TestListTeams(t *testing.T) {
	e := newEnv(t)
	other := testfixtures.SeedTeam(t, e.store, testfixtures.NewTeamFixture(testfixtures.WithTeamOwner("someone-else")))
	testfixtures.SeedTeamUser(t, e.store, other.ID, owner.UserID, persistence.RoleViewer)
	testfixtures.SeedTeam(t, e.store, testfixtures.NewTeamFixture(testfixtures.WithTeamOwner("someone-else")))
	svc := e.factory.NewTeamService(e.store)

	teams, err := svc.ListTeams(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("expected 2 teams, got %+v", teams)
	}
	roles := map[string]persistence.Role{}
	for _, team := range teams {
		roles[team.Slug] = team.Role
	}
	if roles[e.team.Slug] != persistence.RoleOwner || roles[other.Slug] != persistence.RoleViewer {
		t.Fatalf("unexpected roles %v", roles)
	}

	if _, err := svc.ListTeams(context.Background(), application.Principal{}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without a principal, got %v", err)
	}
}
