package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/team-hours/internal/persistence"
)

func TestWithinReadTxRejectsWrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	team := persistence.Team{ID: "team-1", Slug: "crew", DisplayName: "Crew", CreatedAt: time.Unix(0, 0).UTC()}
	if err := store.CreateTeam(ctx, team, persistence.TeamUser{UserID: "owner", Role: persistence.RoleOwner}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	err := store.WithinReadTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		if _, err := tx.GetTeamBySlug(ctx, "crew"); err != nil {
			return err
		}
		return tx.CreateMember(ctx, persistence.Member{ID: "m-1", TeamID: team.ID, Name: "Ada"})
	})
	if !errors.Is(err, persistence.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := store.GetMember(ctx, "m-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("rejected write must not be stored, got %v", err)
	}
}

func TestCommittedSnapshotIsNotMutated(t *testing.T) {
	store := New()
	ctx := context.Background()
	team := persistence.Team{ID: "team-1", Slug: "crew", DisplayName: "Crew"}
	if err := store.CreateTeam(ctx, team, persistence.TeamUser{UserID: "owner", Role: persistence.RoleOwner}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	before := store.snapshot()
	if err := store.CreateMember(ctx, persistence.Member{ID: "m-1", TeamID: team.ID, Name: "Ada"}); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	if _, ok := before.members["m-1"]; ok {
		t.Fatal("a write must not modify a snapshot handed to readers")
	}
	if _, err := store.GetMember(ctx, "m-1"); err != nil {
		t.Fatalf("expected committed member, got %v", err)
	}
}
