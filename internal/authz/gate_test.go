package authz_test

import (
	"context"
	"testing"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/authz"
	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/persistence/memory"
	"github.com/example/team-hours/internal/testfixtures"
)

func TestRoleGate(t *testing.T) {
	store := memory.New()
	team := testfixtures.SeedTeam(t, store, testfixtures.NewTeamFixture(testfixtures.WithTeamOwner("owner")))
	member := testfixtures.SeedMember(t, store, testfixtures.NewMemberFixture(team.ID))
	testfixtures.SeedTeamUser(t, store, team.ID, "viewer", persistence.RoleViewer)
	testfixtures.SeedTeamUser(t, store, team.ID, "editor", persistence.RoleEditor)
	testfixtures.SeedTeamUser(t, store, team.ID, "admin", persistence.RoleAdmin)
	gate := authz.NewRoleGate(store)

	teamRes := application.TeamResource(team.Slug)
	memberRes := application.MemberResource(member.ID)

	tests := []struct {
		name     string
		user     string
		action   application.Action
		resource application.Resource
		want     bool
	}{
		{name: "anyone can create a team", user: "stranger", action: application.ActionTeamCreate, resource: application.Resource{Kind: application.ResourceGlobal}, want: true},
		{name: "anonymous cannot create a team", user: "", action: application.ActionTeamCreate, want: false},
		{name: "viewer reads", user: "viewer", action: application.ActionTeamRead, resource: teamRes, want: true},
		{name: "stranger cannot read", user: "stranger", action: application.ActionTeamRead, resource: teamRes, want: false},
		{name: "viewer cannot sign in", user: "viewer", action: application.ActionMemberAttendance, resource: memberRes, want: false},
		{name: "editor signs in", user: "editor", action: application.ActionMemberAttendance, resource: memberRes, want: true},
		{name: "editor ends meeting", user: "editor", action: application.ActionTeamEndMeeting, resource: teamRes, want: true},
		{name: "editor cannot delete", user: "editor", action: application.ActionMemberDelete, resource: memberRes, want: false},
		{name: "admin deletes", user: "admin", action: application.ActionMemberDelete, resource: memberRes, want: true},
		{name: "owner manages users", user: "owner", action: application.ActionTeamManageUsers, resource: teamRes, want: true},
		{name: "unknown team is denied", user: "owner", action: application.ActionTeamRead, resource: application.TeamResource("missing"), want: false},
		{name: "unknown member is denied", user: "owner", action: application.ActionMemberUpdate, resource: application.MemberResource("missing"), want: false},
		{name: "unknown action is denied", user: "owner", action: application.Action("team.explode"), resource: teamRes, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gate.Allows(context.Background(), application.Principal{UserID: tt.user}, tt.action, tt.resource)
			if err != nil {
				t.Fatalf("Allows returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSatisfies(t *testing.T) {
	if !authz.Satisfies(persistence.RoleOwner, persistence.RoleAdmin) {
		t.Fatal("owner should satisfy admin")
	}
	if authz.Satisfies(persistence.Role("guest"), persistence.RoleViewer) {
		t.Fatal("unknown role should not satisfy viewer")
	}
}
