// Package authz decides which users may act on which teams. Access is
// granted per team through the role a user holds in it.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/persistence"
)

var roleRank = map[persistence.Role]int{
	persistence.RoleViewer: 1,
	persistence.RoleEditor: 2,
	persistence.RoleAdmin:  3,
	persistence.RoleOwner:  4,
}

// RequiredRole returns the lowest role that permits action. The second
// result is false for actions that are not bound to a team.
func RequiredRole(action application.Action) (persistence.Role, bool) {
	switch action {
	case application.ActionTeamRead:
		return persistence.RoleViewer, true
	case application.ActionMemberAttendance, application.ActionTeamEndMeeting:
		return persistence.RoleEditor, true
	case application.ActionMemberCreate, application.ActionMemberUpdate,
		application.ActionMemberDelete, application.ActionTeamManageUsers:
		return persistence.RoleAdmin, true
	}
	return "", false
}

// Satisfies reports whether held is at least required.
func Satisfies(held, required persistence.Role) bool {
	return roleRank[held] > 0 && roleRank[held] >= roleRank[required]
}

// RoleGate implements application.Gate using team roles from storage.
type RoleGate struct {
	store persistence.Repositories
}

var _ application.Gate = (*RoleGate)(nil)

// NewRoleGate returns a gate reading roles from store.
func NewRoleGate(store persistence.Repositories) *RoleGate {
	return &RoleGate{store: store}
}

// Allows resolves the resource to its team and compares the principal's
// role there with the role the action requires. Resources that do not
// exist are denied.
func (g *RoleGate) Allows(ctx context.Context, principal application.Principal, action application.Action, resource application.Resource) (bool, error) {
	if principal.UserID == "" {
		return false, nil
	}
	switch action {
	case application.ActionTeamCreate, application.ActionTeamList:
		return true, nil
	}

	required, ok := RequiredRole(action)
	if !ok {
		return false, nil
	}

	teamID, err := g.resolveTeam(ctx, resource)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	tu, err := g.store.GetTeamUser(ctx, teamID, principal.UserID)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load role: %w", err)
	}
	return Satisfies(tu.Role, required), nil
}

func (g *RoleGate) resolveTeam(ctx context.Context, resource application.Resource) (string, error) {
	switch resource.Kind {
	case application.ResourceTeam:
		team, err := g.store.GetTeamBySlug(ctx, resource.ID)
		if err != nil {
			return "", err
		}
		return team.ID, nil
	case application.ResourceMember:
		member, err := g.store.GetMember(ctx, resource.ID)
		if err != nil {
			return "", err
		}
		return member.TeamID, nil
	}
	return "", persistence.ErrNotFound
}
