package application

import (
	"context"

	"github.com/example/team-hours/internal/persistence"
)

const archivePresentMsg = "cannot archive a member who is currently signed in"

// memberUpdate lists the fields a rename or archive change writes. Nil
// fields are left as stored.
type memberUpdate struct {
	Name     *string
	Archived *bool
}

// applyMemberUpdate writes update as one conditional row update inside tx.
// Archiving requires the member to be signed out. Fields that already hold
// the requested value are skipped, and changed reports whether anything was
// written.
func applyMemberUpdate(ctx context.Context, tx persistence.Repositories, memberID string, update memberUpdate) (stored persistence.Member, changed bool, err error) {
	stored, err = tx.GetMember(ctx, memberID)
	if err != nil {
		return
	}

	var (
		cond  persistence.MemberCondition
		patch persistence.MemberPatch
	)
	if update.Name != nil && *update.Name != stored.Name {
		patch.Name = update.Name
	}
	if update.Archived != nil && *update.Archived != stored.Archived {
		patch.Archived = update.Archived
		if *update.Archived {
			cond.SignedOut = true
			patch.ClearPendingSignIn = true
		}
	}
	if patch.Name == nil && patch.Archived == nil {
		return
	}

	rows, err := tx.UpdateMember(ctx, memberID, cond, patch)
	if err != nil {
		return
	}
	if rows == 0 {
		if cond.SignedOut {
			err = &ConflictError{Message: archivePresentMsg}
			return
		}
		err = persistence.ErrNotFound
		return
	}

	stored, err = tx.GetMember(ctx, memberID)
	changed = err == nil
	return
}
