package sqlite

import (
	"context"
	"fmt"

	"github.com/example/team-hours/internal/persistence"
)

// TeamRepository implements persistence.TeamRepository using SQLite
type TeamRepository struct {
	q      queryer
	mapper *ErrorMapper
}

// CreateTeam inserts the team and its owner. Callers wanting atomicity run it inside WithinTx.
func (r *TeamRepository) CreateTeam(ctx context.Context, team persistence.Team, owner persistence.TeamUser) error {
	if team.ID == "" || team.Slug == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO teams (id, slug, display_name, created_at) VALUES (?, ?, ?, ?)`,
		team.ID, team.Slug, team.DisplayName, toMillis(team.CreatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	owner.TeamID = team.ID
	return r.UpsertTeamUser(ctx, owner)
}

// GetTeam retrieves a team by ID
func (r *TeamRepository) GetTeam(ctx context.Context, id string) (persistence.Team, error) {
	return r.getTeam(ctx, `SELECT id, slug, display_name, created_at FROM teams WHERE id = ?`, id)
}

// GetTeamBySlug retrieves a team by its URL slug
func (r *TeamRepository) GetTeamBySlug(ctx context.Context, slug string) (persistence.Team, error) {
	return r.getTeam(ctx, `SELECT id, slug, display_name, created_at FROM teams WHERE slug = ?`, slug)
}

func (r *TeamRepository) getTeam(ctx context.Context, query, arg string) (persistence.Team, error) {
	if arg == "" {
		return persistence.Team{}, persistence.ErrNotFound
	}

	var team persistence.Team
	var createdAt int64
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&team.ID, &team.Slug, &team.DisplayName, &createdAt)
	if err != nil {
		return persistence.Team{}, r.mapper.MapError(err)
	}
	team.CreatedAt = fromMillis(createdAt)
	return team, nil
}

// CountOwnedTeams counts the teams where userID holds the owner role
func (r *TeamRepository) CountOwnedTeams(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_users WHERE user_id = ? AND role = ?`,
		userID, string(persistence.RoleOwner),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned teams: %w", r.mapper.MapError(err))
	}
	return count, nil
}

// GetTeamUser returns the membership of userID in teamID
func (r *TeamRepository) GetTeamUser(ctx context.Context, teamID, userID string) (persistence.TeamUser, error) {
	var tu persistence.TeamUser
	var role string
	err := r.q.QueryRowContext(ctx,
		`SELECT team_id, user_id, role FROM team_users WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&tu.TeamID, &tu.UserID, &role)
	if err != nil {
		return persistence.TeamUser{}, r.mapper.MapError(err)
	}
	tu.Role = persistence.Role(role)
	return tu, nil
}

// UpsertTeamUser grants or changes a user's role in a team
func (r *TeamRepository) UpsertTeamUser(ctx context.Context, user persistence.TeamUser) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO team_users (team_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role
	`, user.TeamID, user.UserID, string(user.Role))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeleteTeamUser revokes a user's role in a team
func (r *TeamRepository) DeleteTeamUser(ctx context.Context, teamID, userID string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM team_users WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListTeamsForUser returns the teams userID holds any role in
func (r *TeamRepository) ListTeamsForUser(ctx context.Context, userID string) ([]persistence.UserTeam, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT t.id, t.slug, t.display_name, t.created_at, tu.role
		FROM team_users tu
		JOIN teams t ON t.id = tu.team_id
		WHERE tu.user_id = ?
		ORDER BY t.display_name, t.slug
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for user: %w", r.mapper.MapError(err))
	}
	defer rows.Close()

	teams := make([]persistence.UserTeam, 0)
	for rows.Next() {
		var (
			team      persistence.UserTeam
			createdAt int64
			role      string
		)
		if err := rows.Scan(&team.ID, &team.Slug, &team.DisplayName, &createdAt, &role); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", r.mapper.MapError(err))
		}
		team.CreatedAt = fromMillis(createdAt)
		team.Role = persistence.Role(role)
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", r.mapper.MapError(err))
	}
	return teams, nil
}
