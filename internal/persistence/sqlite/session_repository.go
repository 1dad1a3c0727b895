package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/team-hours/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	q      queryer
	mapper *ErrorMapper
}

// InsertClosedSession records a finished attendance interval
func (r *SessionRepository) InsertClosedSession(ctx context.Context, session persistence.ClosedSession) error {
	if session.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO closed_sessions (id, member_id, started_at, ended_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.MemberID, toMillis(session.StartedAt), toMillis(session.EndedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// ListClosedSessions returns sessions matching filter ordered by start time
func (r *SessionRepository) ListClosedSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.ClosedSession, error) {
	query := `SELECT s.id, s.member_id, s.started_at, s.ended_at FROM closed_sessions s`
	var where []string
	var args []any

	if filter.TeamID != "" {
		query += ` JOIN team_members m ON m.id = s.member_id`
		where = append(where, "m.team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.MemberID != "" {
		where = append(where, "s.member_id = ?")
		args = append(args, filter.MemberID)
	}
	if filter.StartedAfter != nil {
		where = append(where, "s.started_at > ?")
		args = append(args, toMillis(*filter.StartedAfter))
	}
	if filter.EndedBefore != nil {
		where = append(where, "s.ended_at < ?")
		args = append(args, toMillis(*filter.EndedBefore))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY s.started_at, s.id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", r.mapper.MapError(err))
	}
	defer rows.Close()

	sessions := make([]persistence.ClosedSession, 0)
	for rows.Next() {
		var session persistence.ClosedSession
		var startedAt, endedAt int64
		if err := rows.Scan(&session.ID, &session.MemberID, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.StartedAt = fromMillis(startedAt)
		session.EndedAt = fromMillis(endedAt)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// DeleteClosedSessionsForMember removes every closed session of a member
func (r *SessionRepository) DeleteClosedSessionsForMember(ctx context.Context, memberID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM closed_sessions WHERE member_id = ?`, memberID)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return rowsAffected(result)
}

// ListOpenSessions returns signed-in members ordered by sign-in time
func (r *SessionRepository) ListOpenSessions(ctx context.Context, filter persistence.OpenSessionFilter) ([]persistence.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE pending_sign_in IS NOT NULL`
	var args []any
	if filter.TeamID != "" {
		query += ` AND team_id = ?`
		args = append(args, filter.TeamID)
	}
	if filter.StartedAfter != nil {
		query += ` AND pending_sign_in > ?`
		args = append(args, toMillis(*filter.StartedAfter))
	}
	query += ` ORDER BY pending_sign_in, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions: %w", r.mapper.MapError(err))
	}
	return collectMembers(rows)
}

// LastSessionEnds returns the latest session end per member of the team
func (r *SessionRepository) LastSessionEnds(ctx context.Context, teamID string) (map[string]time.Time, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT s.member_id, MAX(s.ended_at)
		FROM closed_sessions s
		JOIN team_members m ON m.id = s.member_id
		WHERE m.team_id = ?
		GROUP BY s.member_id
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query last session ends: %w", r.mapper.MapError(err))
	}
	defer rows.Close()

	ends := make(map[string]time.Time)
	for rows.Next() {
		var memberID string
		var endedAt int64
		if err := rows.Scan(&memberID, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan last session end: %w", err)
		}
		ends[memberID] = fromMillis(endedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating last session ends: %w", err)
	}
	return ends, nil
}
