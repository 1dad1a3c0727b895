package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Action names an operation checked by the authorization gate.
type Action string

const (
	ActionTeamCreate       Action = "team.create"
	ActionTeamList         Action = "team.list"
	ActionTeamRead         Action = "team.read"
	ActionTeamManageUsers  Action = "team.manage_users"
	ActionTeamEndMeeting   Action = "team.end_meeting"
	ActionMemberCreate     Action = "member.create"
	ActionMemberAttendance Action = "member.attendance"
	ActionMemberUpdate     Action = "member.update"
	ActionMemberDelete     Action = "member.delete"
)

// ResourceKind distinguishes what a Resource identifies.
type ResourceKind string

const (
	ResourceGlobal ResourceKind = "global"
	ResourceTeam   ResourceKind = "team"
	ResourceMember ResourceKind = "member"
)

// Resource is the object an action is performed on. Teams are identified by
// slug and members by id.
type Resource struct {
	Kind ResourceKind
	ID   string
}

// TeamResource identifies a team by slug.
func TeamResource(slug string) Resource {
	return Resource{Kind: ResourceTeam, ID: slug}
}

// MemberResource identifies a member by id.
func MemberResource(id string) Resource {
	return Resource{Kind: ResourceMember, ID: id}
}

// Gate decides whether a principal may perform an action on a resource.
type Gate interface {
	Allows(ctx context.Context, principal Principal, action Action, resource Resource) (bool, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, principal Principal, action Action, resource Resource) (bool, error)

// Allows calls f.
func (f GateFunc) Allows(ctx context.Context, principal Principal, action Action, resource Resource) (bool, error) {
	return f(ctx, principal, action, resource)
}

// EventKind labels a change notification.
type EventKind string

const (
	EventMemberCreated           EventKind = "member.created"
	EventMemberUpdated           EventKind = "member.updated"
	EventMemberAttendanceUpdated EventKind = "member.attendance_updated"
	EventMemberDeleted           EventKind = "member.deleted"
)

// Event is published after a mutation commits.
type Event struct {
	Scope      string
	Kind       EventKind
	MemberID   string
	OccurredAt time.Time
}

// TeamScope returns the event scope for subscribers of a team.
func TeamScope(teamID string) string {
	return "team:" + teamID
}

// Notifier delivers change events to subscribers.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

func authorize(ctx context.Context, gate Gate, principal Principal, action Action, resource Resource) error {
	if principal.UserID == "" {
		return ErrUnauthorized
	}
	if gate == nil {
		return fmt.Errorf("%w: authorization gate not configured", ErrInternal)
	}
	allowed, err := gate.Allows(ctx, principal, action, resource)
	if err != nil {
		return fmt.Errorf("%w: authorize %s: %w", ErrInternal, action, err)
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// publish delivers event and only logs delivery failures; the mutation has
// already committed.
func publish(ctx context.Context, notifier Notifier, logger *slog.Logger, event Event) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish change event",
			"error", err,
			"event_kind", string(event.Kind),
			"scope", event.Scope,
		)
	}
}
