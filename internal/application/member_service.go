package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/timeseries"
)

const (
	// MaxMembersPerTeam bounds the roster size of a single team.
	MaxMembersPerTeam = 1000
	maxMemberNameLen  = 100
	duplicateNameMsg  = "a team member with that name already exists"
)

// MemberService manages team rosters.
type MemberService struct {
	store       persistence.Store
	gate        Gate
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMemberService constructs a member service with the provided dependencies.
func NewMemberService(store persistence.Store, gate Gate, notifier Notifier, idGenerator func() string, now func() time.Time) *MemberService {
	return NewMemberServiceWithLogger(store, gate, notifier, idGenerator, now, nil)
}

// NewMemberServiceWithLogger constructs a member service with a specified logger.
func NewMemberServiceWithLogger(store persistence.Store, gate Gate, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MemberService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MemberService{
		store:       store,
		gate:        gate,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *MemberService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MemberService", operation, attrs...)
}

func (s *MemberService) ready() error {
	if s == nil {
		return fmt.Errorf("MemberService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("%w: store not configured", ErrInternal)
	}
	return nil
}

// CreateMember adds a member to a team.
func (s *MemberService) CreateMember(ctx context.Context, params CreateMemberParams) (member Member, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateMember", "principal_id", params.Principal.UserID, "team_slug", params.TeamSlug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("member_id", member.ID).InfoContext(ctx, "member created")
	}()

	if err = authorize(ctx, s.gate, params.Principal, ActionMemberCreate, TeamResource(params.TeamSlug)); err != nil {
		return
	}

	name, vErr := validateMemberName(params.Name)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	record := persistence.Member{
		ID:        s.idGenerator(),
		Name:      name,
		CreatedAt: s.now(),
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, params.TeamSlug)
		if err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, team.ID)
		if err != nil {
			return err
		}
		if count >= MaxMembersPerTeam {
			return newValidationError("team", fmt.Sprintf("You can't have more than %d members in a team, try deleting some members first", MaxMembersPerTeam))
		}
		record.TeamID = team.ID
		return tx.CreateMember(ctx, record)
	})
	if err != nil {
		err = mapStoreError(err, duplicateNameMsg)
		return
	}

	member = toMember(record)
	publish(ctx, s.notifier, logger, Event{Scope: TeamScope(member.TeamID), Kind: EventMemberCreated, MemberID: member.ID, OccurredAt: record.CreatedAt})
	return
}

// RenameMember changes a member's display name.
func (s *MemberService) RenameMember(ctx context.Context, principal Principal, memberID, name string) (member Member, err error) {
	return s.UpdateMember(ctx, UpdateMemberParams{Principal: principal, MemberID: memberID, Name: &name})
}

// UpdateMember applies a rename and an archive change in one transaction, so
// a rejected archive leaves the name untouched. Archiving a member who is
// signed in is a conflict. An event is published only when a field changed.
func (s *MemberService) UpdateMember(ctx context.Context, params UpdateMemberParams) (member Member, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateMember", "principal_id", params.Principal.UserID, "member_id", params.MemberID)
	var changed bool
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member update processed", "changed", changed)
	}()

	if err = authorize(ctx, s.gate, params.Principal, ActionMemberUpdate, MemberResource(params.MemberID)); err != nil {
		return
	}

	update := memberUpdate{Archived: params.Archived}
	if params.Name != nil {
		normalized, vErr := validateMemberName(*params.Name)
		if vErr.HasErrors() {
			err = vErr
			return
		}
		update.Name = &normalized
	}

	var stored persistence.Member
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		var err error
		stored, changed, err = applyMemberUpdate(ctx, tx, params.MemberID, update)
		return err
	})
	if err != nil {
		err = mapStoreError(err, duplicateNameMsg)
		return
	}

	member = toMember(stored)
	if changed {
		publish(ctx, s.notifier, logger, Event{Scope: TeamScope(member.TeamID), Kind: EventMemberUpdated, MemberID: member.ID, OccurredAt: s.now()})
	}
	return
}

// ListMembers returns the active members of a team ordered by name.
func (s *MemberService) ListMembers(ctx context.Context, principal Principal, teamSlug string) (members []Member, err error) {
	return s.list(ctx, principal, teamSlug, false)
}

// ListMembersFull returns every member of a team, archived ones included,
// with the time each was last seen at a meeting.
func (s *MemberService) ListMembersFull(ctx context.Context, principal Principal, teamSlug string) (members []Member, err error) {
	return s.list(ctx, principal, teamSlug, true)
}

func (s *MemberService) list(ctx context.Context, principal Principal, teamSlug string, full bool) (members []Member, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ListMembers", "principal_id", principal.UserID, "team_slug", teamSlug, "full", full)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list members", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "members listed", "count", len(members))
	}()

	if err = authorize(ctx, s.gate, principal, ActionTeamRead, TeamResource(teamSlug)); err != nil {
		return
	}

	now := s.now()
	err = s.store.WithinReadTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, teamSlug)
		if err != nil {
			return err
		}
		records, err := tx.ListMembers(ctx, team.ID, full)
		if err != nil {
			return err
		}
		var lastEnds map[string]time.Time
		if full {
			if lastEnds, err = tx.LastSessionEnds(ctx, team.ID); err != nil {
				return err
			}
		}
		members = make([]Member, 0, len(records))
		for _, record := range records {
			member := toMember(record)
			if full {
				member.LastSeenAt = lastSeen(record, lastEnds, now)
			}
			members = append(members, member)
		}
		return nil
	})
	if err != nil {
		members = nil
		err = mapStoreError(err, "")
	}
	return
}

func lastSeen(member persistence.Member, lastEnds map[string]time.Time, now time.Time) *time.Time {
	if member.PendingSignIn != nil {
		return &now
	}
	if end, ok := lastEnds[member.ID]; ok {
		return &end
	}
	return nil
}

// ListSessions returns the member's finished sessions, newest first. A
// non-nil r limits the result to sessions fully inside the range.
func (s *MemberService) ListSessions(ctx context.Context, principal Principal, memberID string, r *timeseries.Range) (sessions []Session, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ListSessions", "principal_id", principal.UserID, "member_id", memberID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "sessions listed", "count", len(sessions))
	}()

	if err = authorize(ctx, s.gate, principal, ActionTeamRead, MemberResource(memberID)); err != nil {
		return
	}

	filter := persistence.SessionFilter{MemberID: memberID}
	if err = applySessionRange(&filter, r); err != nil {
		return
	}

	var records []persistence.ClosedSession
	err = s.store.WithinReadTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}
		var err error
		records, err = tx.ListClosedSessions(ctx, filter)
		return err
	})
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	sessions = newestFirst(records)
	return
}

// ListTeamSessions returns the finished sessions of every member of the
// team, newest first. A non-nil r limits the result to sessions fully inside
// the range.
func (s *MemberService) ListTeamSessions(ctx context.Context, principal Principal, teamSlug string, r *timeseries.Range) (sessions []Session, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ListTeamSessions", "principal_id", principal.UserID, "team_slug", teamSlug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list team sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "team sessions listed", "count", len(sessions))
	}()

	if err = authorize(ctx, s.gate, principal, ActionTeamRead, TeamResource(teamSlug)); err != nil {
		return
	}

	var filter persistence.SessionFilter
	if err = applySessionRange(&filter, r); err != nil {
		return
	}

	var records []persistence.ClosedSession
	err = s.store.WithinReadTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, teamSlug)
		if err != nil {
			return err
		}
		filter.TeamID = team.ID
		records, err = tx.ListClosedSessions(ctx, filter)
		return err
	})
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	sessions = newestFirst(records)
	return
}

func applySessionRange(filter *persistence.SessionFilter, r *timeseries.Range) error {
	if r == nil {
		return nil
	}
	if err := r.Validate(); err != nil {
		return newValidationError("range", err.Error())
	}
	start, end := r.Start, r.End
	filter.StartedAfter = &start
	filter.EndedBefore = &end
	return nil
}

func newestFirst(records []persistence.ClosedSession) []Session {
	sessions := make([]Session, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		sessions = append(sessions, toSession(records[i]))
	}
	return sessions
}

func validateMemberName(raw string) (string, *ValidationError) {
	vErr := &ValidationError{}
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		vErr.add("name", "name is required")
	case utf8.RuneCountInString(name) > maxMemberNameLen:
		vErr.add("name", fmt.Sprintf("name must be at most %d characters", maxMemberNameLen))
	}
	return name, vErr
}
