package evidence

import (
	"context"
	"fmt"
	"strings"

	"evidencevault/internal/models"
	"evidencevault/internal/policy"
	"evidencevault/internal/store"
)

// UpdateAnalysisStatus moves an item along the analysis lifecycle. It returns
// false when the item does not exist. Setting the current status again
// succeeds and is still recorded, DELETED included. Moving into DELETED is
// refused here; Delete carries the reason and purges the bytes.
func (s *Service) UpdateAnalysisStatus(ctx context.Context, id, rawStatus string, actor Actor) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}
	target, err := models.ParseLifecycleStatus(rawStatus)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	item, err := s.repo.GetEvidence(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	if d := policy.Authorize(actor.Role, policy.OpStatusUpdate, item, ""); !d.Allowed {
		return false, s.recordDenial(ctx, item, models.ActionStatusUpdate, policy.OpStatusUpdate, actor, d, "")
	}
	var ev *models.CustodyEvent
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetEvidence(ctx, item.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return store.ErrNotFound
		}
		if err := policy.CheckTransition(cur.LifecycleStatus, target); err != nil {
			return err
		}
		if target == models.StatusDeleted && cur.LifecycleStatus != models.StatusDeleted {
			return fmt.Errorf("%w: deletion requires a reason and goes through delete", ErrInvalidTransition)
		}
		if cur.LifecycleStatus != target {
			if err := tx.UpdateStatus(ctx, cur.ID, cur.LifecycleStatus, target); err != nil {
				return err
			}
		}
		ev = newEvent(models.ActionStatusUpdate, models.OutcomeSucceeded, actor,
			fmt.Sprintf("%s -> %s", cur.LifecycleStatus, target))
		ev.EvidenceID = cur.ID
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		err = mapStoreError(err)
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	s.announce(ctx, item.CaseID, ev)
	return true, nil
}
