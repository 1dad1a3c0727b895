package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/team-hours/internal/persistence"
)

const (
	// MaxTeamsPerUser bounds how many teams one user may own.
	MaxTeamsPerUser       = 10
	maxTeamDisplayNameLen = 100
)

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?$`)

// TeamService creates teams and manages who can access them.
type TeamService struct {
	store       persistence.Store
	gate        Gate
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTeamService constructs a team service with the provided dependencies.
func NewTeamService(store persistence.Store, gate Gate, idGenerator func() string, now func() time.Time) *TeamService {
	return NewTeamServiceWithLogger(store, gate, idGenerator, now, nil)
}

// NewTeamServiceWithLogger constructs a team service with a specified logger.
func NewTeamServiceWithLogger(store persistence.Store, gate Gate, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TeamService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TeamService{store: store, gate: gate, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *TeamService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TeamService", operation, attrs...)
}

// CreateTeam creates a team owned by the calling principal.
func (s *TeamService) CreateTeam(ctx context.Context, params CreateTeamParams) (team Team, err error) {
	if s == nil {
		err = fmt.Errorf("TeamService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("%w: store not configured", ErrInternal)
		return
	}

	logger := s.loggerWith(ctx, "CreateTeam", "principal_id", params.Principal.UserID, "team_slug", params.Slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create team", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("team_id", team.ID).InfoContext(ctx, "team created")
	}()

	if err = authorize(ctx, s.gate, params.Principal, ActionTeamCreate, Resource{Kind: ResourceGlobal}); err != nil {
		return
	}

	record := persistence.Team{
		ID:          s.idGenerator(),
		Slug:        strings.TrimSpace(params.Slug),
		DisplayName: strings.TrimSpace(params.DisplayName),
		CreatedAt:   s.now(),
	}
	if vErr := validateTeam(record); vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		owned, err := tx.CountOwnedTeams(ctx, params.Principal.UserID)
		if err != nil {
			return err
		}
		if owned >= MaxTeamsPerUser {
			return newValidationError("team", fmt.Sprintf("you can own at most %d teams", MaxTeamsPerUser))
		}
		return tx.CreateTeam(ctx, record, persistence.TeamUser{
			TeamID: record.ID,
			UserID: params.Principal.UserID,
			Role:   persistence.RoleOwner,
		})
	})
	if err != nil {
		err = mapStoreError(err, "a team with that slug already exists")
		return
	}

	team = toTeam(record)
	return
}

// AddTeamUser grants a user a role in a team. Ownership cannot be granted.
func (s *TeamService) AddTeamUser(ctx context.Context, params AddTeamUserParams) (err error) {
	if s == nil {
		return fmt.Errorf("TeamService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("%w: store not configured", ErrInternal)
	}

	logger := s.loggerWith(ctx, "AddTeamUser",
		"principal_id", params.Principal.UserID,
		"team_slug", params.TeamSlug,
		"user_id", params.UserID,
		"role", string(params.Role),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add team user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "team user added")
	}()

	if err = authorize(ctx, s.gate, params.Principal, ActionTeamManageUsers, TeamResource(params.TeamSlug)); err != nil {
		return
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(params.UserID) == "" {
		vErr.add("userId", "user id is required")
	}
	switch params.Role {
	case persistence.RoleAdmin, persistence.RoleEditor, persistence.RoleViewer:
	default:
		vErr.add("role", "role must be one of admin, editor, viewer")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, params.TeamSlug)
		if err != nil {
			return err
		}
		current, err := tx.GetTeamUser(ctx, team.ID, params.UserID)
		switch {
		case err == nil && current.Role == persistence.RoleOwner:
			return &ConflictError{Message: "the team owner's role cannot be changed"}
		case err != nil && !errors.Is(err, persistence.ErrNotFound):
			return err
		}
		return tx.UpsertTeamUser(ctx, persistence.TeamUser{TeamID: team.ID, UserID: params.UserID, Role: params.Role})
	})
	if err != nil {
		err = mapStoreError(err, "")
	}
	return
}

// RemoveTeamUser revokes a user's role in a team. The owner cannot be removed.
func (s *TeamService) RemoveTeamUser(ctx context.Context, params RemoveTeamUserParams) (err error) {
	if s == nil {
		return fmt.Errorf("TeamService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("%w: store not configured", ErrInternal)
	}

	logger := s.loggerWith(ctx, "RemoveTeamUser",
		"principal_id", params.Principal.UserID,
		"team_slug", params.TeamSlug,
		"user_id", params.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove team user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "team user removed")
	}()

	if err = authorize(ctx, s.gate, params.Principal, ActionTeamManageUsers, TeamResource(params.TeamSlug)); err != nil {
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, params.TeamSlug)
		if err != nil {
			return err
		}
		current, err := tx.GetTeamUser(ctx, team.ID, params.UserID)
		if err != nil {
			return err
		}
		if current.Role == persistence.RoleOwner {
			return &ConflictError{Message: "the team owner cannot be removed"}
		}
		return tx.DeleteTeamUser(ctx, team.ID, params.UserID)
	})
	if err != nil {
		err = mapStoreError(err, "")
	}
	return
}

// GetTeamUserRole reports the role userID holds in the team.
func (s *TeamService) GetTeamUserRole(ctx context.Context, principal Principal, teamSlug, userID string) (role persistence.Role, err error) {
	if s == nil {
		err = fmt.Errorf("TeamService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("%w: store not configured", ErrInternal)
		return
	}

	if err = authorize(ctx, s.gate, principal, ActionTeamRead, TeamResource(teamSlug)); err != nil {
		return
	}

	err = s.store.WithinReadTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, teamSlug)
		if err != nil {
			return err
		}
		tu, err := tx.GetTeamUser(ctx, team.ID, userID)
		if err != nil {
			return err
		}
		role = tu.Role
		return nil
	})
	if err != nil {
		err = mapStoreError(err, "")
	}
	return
}

// ListTeams returns the teams the principal holds any role in, ordered by
// display name.
func (s *TeamService) ListTeams(ctx context.Context, principal Principal) (teams []UserTeam, err error) {
	if s == nil {
		err = fmt.Errorf("TeamService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("%w: store not configured", ErrInternal)
		return
	}

	logger := s.loggerWith(ctx, "ListTeams", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list teams", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "teams listed", "count", len(teams))
	}()

	if err = authorize(ctx, s.gate, principal, ActionTeamList, Resource{Kind: ResourceGlobal}); err != nil {
		return
	}

	records, err := s.store.ListTeamsForUser(ctx, principal.UserID)
	if err != nil {
		err = mapStoreError(err, "")
		return
	}
	teams = make([]UserTeam, 0, len(records))
	for _, record := range records {
		teams = append(teams, UserTeam{Team: toTeam(record.Team), Role: record.Role})
	}
	return
}

func validateTeam(team persistence.Team) *ValidationError {
	vErr := &ValidationError{}
	if !slugPattern.MatchString(team.Slug) {
		vErr.add("slug", "slug must be 1-64 lowercase letters, digits or hyphens")
	}
	switch n := utf8.RuneCountInString(team.DisplayName); {
	case n == 0:
		vErr.add("displayName", "display name is required")
	case n > maxTeamDisplayNameLen:
		vErr.add("displayName", fmt.Sprintf("display name must be at most %d characters", maxTeamDisplayNameLen))
	}
	return vErr
}
