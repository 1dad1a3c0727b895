// Package memory provides an in-process implementation of persistence.Store.
// Committed data sets are immutable: a transaction works on a copy that
// replaces the committed one only on success, so readers never wait.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/team-hours/internal/persistence"
)

// Storage is a map backed persistence.Store.
type Storage struct {
	writeMu sync.Mutex
	data    atomic.Pointer[dataset]
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	s := &Storage{}
	s.data.Store(newDataset())
	return s
}

// Close is a no-op kept for parity with the SQLite store.
func (s *Storage) Close() error {
	return nil
}

// WithinTx runs fn against a private copy of the data set and commits it when
// fn succeeds. Writers are serialized.
func (s *Storage) WithinTx(ctx context.Context, fn persistence.TxFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	draft := s.data.Load().clone()
	if err := fn(ctx, draft); err != nil {
		return err
	}
	s.data.Store(draft)
	return nil
}

// WithinReadTx runs fn against the committed data set without locking.
func (s *Storage) WithinReadTx(ctx context.Context, fn persistence.TxFunc) error {
	return fn(ctx, readOnly{s.data.Load()})
}

func (s *Storage) snapshot() *dataset {
	return s.data.Load()
}

func (s *Storage) write(ctx context.Context, fn func(d *dataset) error) error {
	return s.WithinTx(ctx, func(_ context.Context, tx persistence.Repositories) error {
		return fn(tx.(*dataset))
	})
}

func (s *Storage) CreateTeam(ctx context.Context, team persistence.Team, owner persistence.TeamUser) error {
	return s.write(ctx, func(d *dataset) error { return d.CreateTeam(ctx, team, owner) })
}

func (s *Storage) GetTeam(ctx context.Context, id string) (persistence.Team, error) {
	return s.snapshot().GetTeam(ctx, id)
}

func (s *Storage) GetTeamBySlug(ctx context.Context, slug string) (persistence.Team, error) {
	return s.snapshot().GetTeamBySlug(ctx, slug)
}

func (s *Storage) CountOwnedTeams(ctx context.Context, userID string) (int, error) {
	return s.snapshot().CountOwnedTeams(ctx, userID)
}

func (s *Storage) GetTeamUser(ctx context.Context, teamID, userID string) (persistence.TeamUser, error) {
	return s.snapshot().GetTeamUser(ctx, teamID, userID)
}

func (s *Storage) UpsertTeamUser(ctx context.Context, user persistence.TeamUser) error {
	return s.write(ctx, func(d *dataset) error { return d.UpsertTeamUser(ctx, user) })
}

func (s *Storage) DeleteTeamUser(ctx context.Context, teamID, userID string) error {
	return s.write(ctx, func(d *dataset) error { return d.DeleteTeamUser(ctx, teamID, userID) })
}

func (s *Storage) ListTeamsForUser(ctx context.Context, userID string) ([]persistence.UserTeam, error) {
	return s.snapshot().ListTeamsForUser(ctx, userID)
}

func (s *Storage) CreateMember(ctx context.Context, member persistence.Member) error {
	return s.write(ctx, func(d *dataset) error { return d.CreateMember(ctx, member) })
}

func (s *Storage) GetMember(ctx context.Context, id string) (persistence.Member, error) {
	return s.snapshot().GetMember(ctx, id)
}

func (s *Storage) ListMembers(ctx context.Context, teamID string, includeArchived bool) ([]persistence.Member, error) {
	return s.snapshot().ListMembers(ctx, teamID, includeArchived)
}

func (s *Storage) CountMembers(ctx context.Context, teamID string) (int, error) {
	return s.snapshot().CountMembers(ctx, teamID)
}

func (s *Storage) UpdateMember(ctx context.Context, id string, cond persistence.MemberCondition, patch persistence.MemberPatch) (rows int64, err error) {
	err = s.write(ctx, func(d *dataset) error {
		rows, err = d.UpdateMember(ctx, id, cond, patch)
		return err
	})
	return rows, err
}

func (s *Storage) DeleteMember(ctx context.Context, id string) (teamID string, err error) {
	err = s.write(ctx, func(d *dataset) error {
		teamID, err = d.DeleteMember(ctx, id)
		return err
	})
	return teamID, err
}

func (s *Storage) InsertClosedSession(ctx context.Context, session persistence.ClosedSession) error {
	return s.write(ctx, func(d *dataset) error { return d.InsertClosedSession(ctx, session) })
}

func (s *Storage) ListClosedSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.ClosedSession, error) {
	return s.snapshot().ListClosedSessions(ctx, filter)
}

func (s *Storage) DeleteClosedSessionsForMember(ctx context.Context, memberID string) (removed int64, err error) {
	err = s.write(ctx, func(d *dataset) error {
		removed, err = d.DeleteClosedSessionsForMember(ctx, memberID)
		return err
	})
	return removed, err
}

func (s *Storage) ListOpenSessions(ctx context.Context, filter persistence.OpenSessionFilter) ([]persistence.Member, error) {
	return s.snapshot().ListOpenSessions(ctx, filter)
}

func (s *Storage) LastSessionEnds(ctx context.Context, teamID string) (map[string]time.Time, error) {
	return s.snapshot().LastSessionEnds(ctx, teamID)
}

// readOnly exposes a committed data set and rejects writes.
type readOnly struct {
	*dataset
}

func (readOnly) CreateTeam(context.Context, persistence.Team, persistence.TeamUser) error {
	return persistence.ErrReadOnly
}

func (readOnly) UpsertTeamUser(context.Context, persistence.TeamUser) error {
	return persistence.ErrReadOnly
}

func (readOnly) DeleteTeamUser(context.Context, string, string) error {
	return persistence.ErrReadOnly
}

func (readOnly) CreateMember(context.Context, persistence.Member) error {
	return persistence.ErrReadOnly
}

func (readOnly) UpdateMember(context.Context, string, persistence.MemberCondition, persistence.MemberPatch) (int64, error) {
	return 0, persistence.ErrReadOnly
}

func (readOnly) DeleteMember(context.Context, string) (string, error) {
	return "", persistence.ErrReadOnly
}

func (readOnly) InsertClosedSession(context.Context, persistence.ClosedSession) error {
	return persistence.ErrReadOnly
}

func (readOnly) DeleteClosedSessionsForMember(context.Context, string) (int64, error) {
	return 0, persistence.ErrReadOnly
}

// dataset holds the tables. Writes only ever happen on an uncommitted clone.
type dataset struct {
	teams     map[string]persistence.Team
	teamUsers map[string]persistence.TeamUser
	members   map[string]persistence.Member
	sessions  map[string]persistence.ClosedSession
}

func newDataset() *dataset {
	return &dataset{
		teams:     make(map[string]persistence.Team),
		teamUsers: make(map[string]persistence.TeamUser),
		members:   make(map[string]persistence.Member),
		sessions:  make(map[string]persistence.ClosedSession),
	}
}

func (d *dataset) clone() *dataset {
	out := newDataset()
	for k, v := range d.teams {
		out.teams[k] = v
	}
	for k, v := range d.teamUsers {
		out.teamUsers[k] = v
	}
	for k, v := range d.members {
		out.members[k] = cloneMember(v)
	}
	for k, v := range d.sessions {
		out.sessions[k] = v
	}
	return out
}

func teamUserKey(teamID, userID string) string {
	return teamID + "\x00" + userID
}

func (d *dataset) CreateTeam(_ context.Context, team persistence.Team, owner persistence.TeamUser) error {
	if _, ok := d.teams[team.ID]; ok {
		return fmt.Errorf("memory: team %s: %w", team.ID, persistence.ErrDuplicate)
	}
	for _, existing := range d.teams {
		if existing.Slug == team.Slug {
			return fmt.Errorf("memory: team slug %s: %w", team.Slug, persistence.ErrDuplicate)
		}
	}
	d.teams[team.ID] = team
	owner.TeamID = team.ID
	d.teamUsers[teamUserKey(owner.TeamID, owner.UserID)] = owner
	return nil
}

func (d *dataset) GetTeam(_ context.Context, id string) (persistence.Team, error) {
	team, ok := d.teams[id]
	if !ok {
		return persistence.Team{}, persistence.ErrNotFound
	}
	return team, nil
}

func (d *dataset) GetTeamBySlug(_ context.Context, slug string) (persistence.Team, error) {
	for _, team := range d.teams {
		if team.Slug == slug {
			return team, nil
		}
	}
	return persistence.Team{}, persistence.ErrNotFound
}

func (d *dataset) CountOwnedTeams(_ context.Context, userID string) (int, error) {
	count := 0
	for _, tu := range d.teamUsers {
		if tu.UserID == userID && tu.Role == persistence.RoleOwner {
			count++
		}
	}
	return count, nil
}

func (d *dataset) GetTeamUser(_ context.Context, teamID, userID string) (persistence.TeamUser, error) {
	tu, ok := d.teamUsers[teamUserKey(teamID, userID)]
	if !ok {
		return persistence.TeamUser{}, persistence.ErrNotFound
	}
	return tu, nil
}

func (d *dataset) UpsertTeamUser(_ context.Context, user persistence.TeamUser) error {
	if _, ok := d.teams[user.TeamID]; !ok {
		return fmt.Errorf("memory: team %s: %w", user.TeamID, persistence.ErrConstraintViolation)
	}
	d.teamUsers[teamUserKey(user.TeamID, user.UserID)] = user
	return nil
}

func (d *dataset) DeleteTeamUser(_ context.Context, teamID, userID string) error {
	key := teamUserKey(teamID, userID)
	if _, ok := d.teamUsers[key]; !ok {
		return persistence.ErrNotFound
	}
	delete(d.teamUsers, key)
	return nil
}

func (d *dataset) ListTeamsForUser(_ context.Context, userID string) ([]persistence.UserTeam, error) {
	teams := make([]persistence.UserTeam, 0)
	for _, tu := range d.teamUsers {
		if tu.UserID != userID {
			continue
		}
		team, ok := d.teams[tu.TeamID]
		if !ok {
			continue
		}
		teams = append(teams, persistence.UserTeam{Team: team, Role: tu.Role})
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].DisplayName == teams[j].DisplayName {
			return teams[i].Slug < teams[j].Slug
		}
		return teams[i].DisplayName < teams[j].DisplayName
	})
	return teams, nil
}

func (d *dataset) CreateMember(_ context.Context, member persistence.Member) error {
	if _, ok := d.teams[member.TeamID]; !ok {
		return fmt.Errorf("memory: team %s: %w", member.TeamID, persistence.ErrConstraintViolation)
	}
	if _, ok := d.members[member.ID]; ok {
		return fmt.Errorf("memory: member %s: %w", member.ID, persistence.ErrDuplicate)
	}
	if d.nameTaken(member.TeamID, member.ID, member.Name) {
		return fmt.Errorf("memory: member name %q: %w", member.Name, persistence.ErrDuplicate)
	}
	d.members[member.ID] = cloneMember(member)
	return nil
}

func (d *dataset) nameTaken(teamID, exceptID, name string) bool {
	for _, m := range d.members {
		if m.TeamID == teamID && m.ID != exceptID && m.Name == name {
			return true
		}
	}
	return false
}

func (d *dataset) GetMember(_ context.Context, id string) (persistence.Member, error) {
	member, ok := d.members[id]
	if !ok {
		return persistence.Member{}, persistence.ErrNotFound
	}
	return cloneMember(member), nil
}

func (d *dataset) ListMembers(_ context.Context, teamID string, includeArchived bool) ([]persistence.Member, error) {
	members := make([]persistence.Member, 0)
	for _, m := range d.members {
		if m.TeamID != teamID || (m.Archived && !includeArchived) {
			continue
		}
		members = append(members, cloneMember(m))
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name == members[j].Name {
			return members[i].ID < members[j].ID
		}
		return members[i].Name < members[j].Name
	})
	return members, nil
}

func (d *dataset) CountMembers(_ context.Context, teamID string) (int, error) {
	count := 0
	for _, m := range d.members {
		if m.TeamID == teamID {
			count++
		}
	}
	return count, nil
}

func (d *dataset) UpdateMember(_ context.Context, id string, cond persistence.MemberCondition, patch persistence.MemberPatch) (int64, error) {
	member, ok := d.members[id]
	if !ok {
		return 0, nil
	}
	if cond.SignedOut && member.PendingSignIn != nil {
		return 0, nil
	}
	if cond.SignedInAt != nil && (member.PendingSignIn == nil || !member.PendingSignIn.Equal(*cond.SignedInAt)) {
		return 0, nil
	}
	if cond.NotArchived && member.Archived {
		return 0, nil
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if d.nameTaken(member.TeamID, member.ID, name) {
			return 0, fmt.Errorf("memory: member name %q: %w", name, persistence.ErrDuplicate)
		}
		member.Name = name
	}
	if patch.Archived != nil {
		member.Archived = *patch.Archived
	}
	if patch.ClearPendingSignIn {
		member.PendingSignIn = nil
	}
	if patch.PendingSignIn != nil {
		at := *patch.PendingSignIn
		member.PendingSignIn = &at
	}
	d.members[id] = member
	return 1, nil
}

func (d *dataset) DeleteMember(_ context.Context, id string) (string, error) {
	member, ok := d.members[id]
	if !ok {
		return "", persistence.ErrNotFound
	}
	for _, s := range d.sessions {
		if s.MemberID == id {
			return "", fmt.Errorf("memory: member %s has sessions: %w", id, persistence.ErrConstraintViolation)
		}
	}
	delete(d.members, id)
	return member.TeamID, nil
}

func (d *dataset) InsertClosedSession(_ context.Context, session persistence.ClosedSession) error {
	if _, ok := d.members[session.MemberID]; !ok {
		return fmt.Errorf("memory: member %s: %w", session.MemberID, persistence.ErrConstraintViolation)
	}
	if session.EndedAt.Before(session.StartedAt) {
		return fmt.Errorf("memory: session %s ends before it starts: %w", session.ID, persistence.ErrConstraintViolation)
	}
	if _, ok := d.sessions[session.ID]; ok {
		return fmt.Errorf("memory: session %s: %w", session.ID, persistence.ErrDuplicate)
	}
	d.sessions[session.ID] = session
	return nil
}

func (d *dataset) ListClosedSessions(_ context.Context, filter persistence.SessionFilter) ([]persistence.ClosedSession, error) {
	sessions := make([]persistence.ClosedSession, 0)
	for _, s := range d.sessions {
		if filter.MemberID != "" && s.MemberID != filter.MemberID {
			continue
		}
		if filter.TeamID != "" {
			member, ok := d.members[s.MemberID]
			if !ok || member.TeamID != filter.TeamID {
				continue
			}
		}
		if filter.StartedAfter != nil && !s.StartedAt.After(*filter.StartedAfter) {
			continue
		}
		if filter.EndedBefore != nil && !s.EndedAt.Before(*filter.EndedBefore) {
			continue
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (d *dataset) DeleteClosedSessionsForMember(_ context.Context, memberID string) (int64, error) {
	var removed int64
	for id, s := range d.sessions {
		if s.MemberID == memberID {
			delete(d.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (d *dataset) ListOpenSessions(_ context.Context, filter persistence.OpenSessionFilter) ([]persistence.Member, error) {
	members := make([]persistence.Member, 0)
	for _, m := range d.members {
		if m.PendingSignIn == nil {
			continue
		}
		if filter.TeamID != "" && m.TeamID != filter.TeamID {
			continue
		}
		if filter.StartedAfter != nil && !m.PendingSignIn.After(*filter.StartedAfter) {
			continue
		}
		members = append(members, cloneMember(m))
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].PendingSignIn.Equal(*members[j].PendingSignIn) {
			return members[i].ID < members[j].ID
		}
		return members[i].PendingSignIn.Before(*members[j].PendingSignIn)
	})
	return members, nil
}

func (d *dataset) LastSessionEnds(_ context.Context, teamID string) (map[string]time.Time, error) {
	ends := make(map[string]time.Time)
	for _, s := range d.sessions {
		member, ok := d.members[s.MemberID]
		if !ok || member.TeamID != teamID {
			continue
		}
		if current, ok := ends[s.MemberID]; !ok || s.EndedAt.After(current) {
			ends[s.MemberID] = s.EndedAt
		}
	}
	return ends, nil
}

func cloneMember(m persistence.Member) persistence.Member {
	if m.PendingSignIn != nil {
		at := *m.PendingSignIn
		m.PendingSignIn = &at
	}
	return m
}
