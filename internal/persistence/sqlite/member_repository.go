package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/team-hours/internal/persistence"
)

// MemberRepository implements persistence.MemberRepository using SQLite
type MemberRepository struct {
	q      queryer
	mapper *ErrorMapper
}

const memberColumns = `id, team_id, name, archived, created_at, pending_sign_in`

// CreateMember inserts a new member
func (r *MemberRepository) CreateMember(ctx context.Context, member persistence.Member) error {
	if member.ID == "" {
		return persistence.ErrConstraintViolation
	}

	var pending sql.NullInt64
	if member.PendingSignIn != nil {
		pending = sql.NullInt64{Int64: toMillis(*member.PendingSignIn), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO team_members (id, team_id, name, archived, created_at, pending_sign_in)
		VALUES (?, ?, ?, ?, ?, ?)
	`, member.ID, member.TeamID, member.Name, member.Archived, toMillis(member.CreatedAt), pending)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetMember retrieves a member by ID
func (r *MemberRepository) GetMember(ctx context.Context, id string) (persistence.Member, error) {
	if id == "" {
		return persistence.Member{}, persistence.ErrNotFound
	}
	row := r.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members WHERE id = ?`, id)
	member, err := scanMember(row)
	if err != nil {
		return persistence.Member{}, r.mapper.MapError(err)
	}
	return member, nil
}

// ListMembers returns the members of a team ordered by name
func (r *MemberRepository) ListMembers(ctx context.Context, teamID string, includeArchived bool) ([]persistence.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE team_id = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY name, id`

	rows, err := r.q.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", r.mapper.MapError(err))
	}
	return collectMembers(rows)
}

// CountMembers counts every member of the team, archived ones included
func (r *MemberRepository) CountMembers(ctx context.Context, teamID string) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members WHERE team_id = ?`, teamID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", r.mapper.MapError(err))
	}
	return count, nil
}

// UpdateMember applies patch to the member when it matches cond
func (r *MemberRepository) UpdateMember(ctx context.Context, id string, cond persistence.MemberCondition, patch persistence.MemberPatch) (int64, error) {
	var sets []string
	var args []any

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, *patch.Archived)
	}
	switch {
	case patch.PendingSignIn != nil:
		sets = append(sets, "pending_sign_in = ?")
		args = append(args, toMillis(*patch.PendingSignIn))
	case patch.ClearPendingSignIn:
		sets = append(sets, "pending_sign_in = NULL")
	}
	if len(sets) == 0 {
		return 0, nil
	}

	where := []string{"id = ?"}
	args = append(args, id)
	if cond.SignedOut {
		where = append(where, "pending_sign_in IS NULL")
	}
	if cond.SignedInAt != nil {
		where = append(where, "pending_sign_in = ?")
		args = append(args, toMillis(*cond.SignedInAt))
	}
	if cond.NotArchived {
		where = append(where, "archived = 0")
	}

	query := `UPDATE team_members SET ` + strings.Join(sets, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// DeleteMember removes a member. Closed sessions must be deleted first.
func (r *MemberRepository) DeleteMember(ctx context.Context, id string) (string, error) {
	var teamID string
	if err := r.q.QueryRowContext(ctx, `SELECT team_id FROM team_members WHERE id = ?`, id).Scan(&teamID); err != nil {
		return "", r.mapper.MapError(err)
	}

	result, err := r.q.ExecContext(ctx, `DELETE FROM team_members WHERE id = ?`, id)
	if err != nil {
		return "", r.mapper.MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", persistence.ErrNotFound
	}
	return teamID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (persistence.Member, error) {
	var member persistence.Member
	var createdAt int64
	var pending sql.NullInt64
	if err := row.Scan(&member.ID, &member.TeamID, &member.Name, &member.Archived, &createdAt, &pending); err != nil {
		return persistence.Member{}, err
	}
	member.CreatedAt = fromMillis(createdAt)
	member.PendingSignIn = nullableMillis(pending)
	return member, nil
}

func collectMembers(rows *sql.Rows) ([]persistence.Member, error) {
	defer rows.Close()

	members := make([]persistence.Member, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}
