package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/team-hours/internal/persistence"
)

// errSignOutRaced aborts a sign-out transaction whose open session was
// closed by a concurrent caller between the read and the write.
var errSignOutRaced = errors.New("application: open session already closed")

// AttendanceService moves members between the absent and present states.
// Every transition runs as a single store transaction, so concurrent calls
// for the same member cannot open two sessions or close one twice.
type AttendanceService struct {
	store       persistence.Store
	gate        Gate
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(store persistence.Store, gate Gate, notifier Notifier, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(store, gate, notifier, idGenerator, now, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(store persistence.Store, gate Gate, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		store:       store,
		gate:        gate,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

func (s *AttendanceService) ready() error {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("%w: store not configured", ErrInternal)
	}
	return nil
}

// SignIn opens a session for the member starting now. Signing in a member
// who is already present keeps the original start and reports changed=false.
func (s *AttendanceService) SignIn(ctx context.Context, principal Principal, memberID string) (changed bool, err error) {
	if err = s.ready(); err != nil {
		return
	}

	ctx, span := startSpan(ctx, "AttendanceService.SignIn", attribute.String("member.id", memberID))
	logger := s.loggerWith(ctx, "SignIn", "principal_id", principal.UserID, "member_id", memberID)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to sign in member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member sign in processed", "changed", changed)
	}()

	if err = authorize(ctx, s.gate, principal, ActionMemberAttendance, MemberResource(memberID)); err != nil {
		return
	}

	now := s.now()
	var teamID string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		rows, err := tx.UpdateMember(ctx, memberID,
			persistence.MemberCondition{SignedOut: true, NotArchived: true},
			persistence.MemberPatch{PendingSignIn: &now},
		)
		if err != nil {
			return err
		}
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		teamID = member.TeamID
		if rows > 0 {
			changed = true
			return nil
		}
		if member.Archived {
			return &ConflictError{Message: "member is archived"}
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	if changed {
		publish(ctx, s.notifier, logger, Event{Scope: TeamScope(teamID), Kind: EventMemberAttendanceUpdated, MemberID: memberID, OccurredAt: now})
	}
	return
}

// SignOut closes the member's open session, recording it as a finished
// session ending now. Signing out an absent member reports changed=false.
func (s *AttendanceService) SignOut(ctx context.Context, principal Principal, memberID string) (changed bool, err error) {
	if err = s.ready(); err != nil {
		return
	}

	ctx, span := startSpan(ctx, "AttendanceService.SignOut", attribute.String("member.id", memberID))
	logger := s.loggerWith(ctx, "SignOut", "principal_id", principal.UserID, "member_id", memberID)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to sign out member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member sign out processed", "changed", changed)
	}()

	if err = authorize(ctx, s.gate, principal, ActionMemberAttendance, MemberResource(memberID)); err != nil {
		return
	}

	now := s.now()
	var teamID string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		teamID = member.TeamID
		if member.Archived || member.PendingSignIn == nil {
			return nil
		}
		if err := s.closeSession(ctx, tx, member, now); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if errors.Is(err, errSignOutRaced) {
		err = nil
		changed = false
	}
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	if changed {
		publish(ctx, s.notifier, logger, Event{Scope: TeamScope(teamID), Kind: EventMemberAttendanceUpdated, MemberID: memberID, OccurredAt: now})
	}
	return
}

// closeSession records the member's open session as finished at end and
// clears it, guarded on the start time that was read.
func (s *AttendanceService) closeSession(ctx context.Context, tx persistence.Repositories, member persistence.Member, end time.Time) error {
	start := *member.PendingSignIn
	if end.Before(start) {
		end = start
	}
	if err := tx.InsertClosedSession(ctx, persistence.ClosedSession{
		ID:        s.idGenerator(),
		MemberID:  member.ID,
		StartedAt: start,
		EndedAt:   end,
	}); err != nil {
		return err
	}
	rows, err := tx.UpdateMember(ctx, member.ID,
		persistence.MemberCondition{SignedInAt: &start},
		persistence.MemberPatch{ClearPendingSignIn: true},
	)
	if err != nil {
		return err
	}
	if rows == 0 {
		return errSignOutRaced
	}
	return nil
}

// UpdateAttendance signs the member in when atMeeting is true and out otherwise.
func (s *AttendanceService) UpdateAttendance(ctx context.Context, principal Principal, memberID string, atMeeting bool) (bool, error) {
	if atMeeting {
		return s.SignIn(ctx, principal, memberID)
	}
	return s.SignOut(ctx, principal, memberID)
}

// SetArchived archives or restores a member. A member who is signed in
// cannot be archived. Requesting the current state succeeds without
// publishing an event.
func (s *AttendanceService) SetArchived(ctx context.Context, principal Principal, memberID string, archived bool) (member Member, err error) {
	if err = s.ready(); err != nil {
		return
	}

	ctx, span := startSpan(ctx, "AttendanceService.SetArchived", attribute.String("member.id", memberID), attribute.Bool("member.archived", archived))
	logger := s.loggerWith(ctx, "SetArchived", "principal_id", principal.UserID, "member_id", memberID, "archived", archived)
	var changed bool
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update member archive state", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member archive state processed", "changed", changed)
	}()

	if err = authorize(ctx, s.gate, principal, ActionMemberUpdate, MemberResource(memberID)); err != nil {
		return
	}

	var stored persistence.Member
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		var err error
		stored, changed, err = applyMemberUpdate(ctx, tx, memberID, memberUpdate{Archived: &archived})
		return err
	})
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	member = toMember(stored)
	if changed {
		publish(ctx, s.notifier, logger, Event{Scope: TeamScope(member.TeamID), Kind: EventMemberUpdated, MemberID: member.ID, OccurredAt: s.now()})
	}
	return
}

// Delete removes the member and all of its finished sessions. Deleting a
// member that does not exist succeeds without publishing an event.
func (s *AttendanceService) Delete(ctx context.Context, principal Principal, memberID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	ctx, span := startSpan(ctx, "AttendanceService.Delete", attribute.String("member.id", memberID))
	logger := s.loggerWith(ctx, "Delete", "principal_id", principal.UserID, "member_id", memberID)
	var (
		existed bool
		removed int64
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member delete processed", "existed", existed, "sessions_removed", removed)
	}()

	if err = authorize(ctx, s.gate, principal, ActionMemberDelete, MemberResource(memberID)); err != nil {
		return
	}

	var teamID string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		n, err := tx.DeleteClosedSessionsForMember(ctx, memberID)
		if err != nil {
			return err
		}
		teamID, err = tx.DeleteMember(ctx, memberID)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		removed = n
		return nil
	})
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	if existed {
		publish(ctx, s.notifier, logger, Event{Scope: TeamScope(teamID), Kind: EventMemberDeleted, MemberID: memberID, OccurredAt: s.now()})
	}
	return
}

// EndMeeting signs out every member of the team who is currently present
// and returns how many sessions were closed.
func (s *AttendanceService) EndMeeting(ctx context.Context, principal Principal, teamSlug string) (closed int, err error) {
	if err = s.ready(); err != nil {
		return
	}

	ctx, span := startSpan(ctx, "AttendanceService.EndMeeting", attribute.String("team.slug", teamSlug))
	logger := s.loggerWith(ctx, "EndMeeting", "principal_id", principal.UserID, "team_slug", teamSlug)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to end meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting ended", "sessions_closed", closed)
	}()

	if err = authorize(ctx, s.gate, principal, ActionTeamEndMeeting, TeamResource(teamSlug)); err != nil {
		return
	}

	now := s.now()
	var teamID string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, teamSlug)
		if err != nil {
			return err
		}
		teamID = team.ID
		present, err := tx.ListOpenSessions(ctx, persistence.OpenSessionFilter{TeamID: team.ID})
		if err != nil {
			return err
		}
		for _, member := range present {
			if err := s.closeSession(ctx, tx, member, now); err != nil {
				return err
			}
			closed++
		}
		return nil
	})
	if err != nil {
		closed = 0
		err = mapStoreError(err, "")
		return
	}

	if closed > 0 {
		publish(ctx, s.notifier, logger, Event{Scope: TeamScope(teamID), Kind: EventMemberAttendanceUpdated, OccurredAt: now})
	}
	return
}
