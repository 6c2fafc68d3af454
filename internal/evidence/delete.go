package evidence

import (
	"context"
	"errors"
	"strings"

	"evidencevault/internal/models"
	"evidencevault/internal/policy"
	"evidencevault/internal/store"
)

// Delete tombstones an item and purges its bytes. It returns false when the
// item does not exist or was already deleted, including by a concurrent caller.
func (s *Service) Delete(ctx context.Context, id, reason string, actor Actor) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}
	item, err := s.repo.GetEvidence(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	if d := policy.Authorize(actor.Role, policy.OpDelete, item, reason); !d.Allowed {
		return false, s.recordDenial(ctx, item, models.ActionDeleteDenied, policy.OpDelete, actor, d, reason)
	}
	if item.LifecycleStatus == models.StatusDeleted {
		return false, nil
	}

	// Claim the deletion: status CAS and the DELETE event commit together,
	// so only one caller ever records the change.
	ev := newEvent(models.ActionDelete, models.OutcomeSucceeded, actor, strings.TrimSpace(reason))
	ev.EvidenceID = item.ID
	var key string
	claimed := false
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetEvidence(ctx, item.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.LifecycleStatus == models.StatusDeleted {
			return nil
		}
		if err := policy.CheckTransition(cur.LifecycleStatus, models.StatusDeleted); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, cur.ID, cur.LifecycleStatus, models.StatusDeleted); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		key = cur.StorageKey
		claimed = true
		return nil
	})
	if errors.Is(err, store.ErrStatusConflict) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}
	if !claimed {
		return false, nil
	}

	s.announce(ctx, item.CaseID, ev)
	s.logger.Info("evidence deleted", "evidence_id", item.ID, "actor_id", actor.ID, "reason", ev.Reason)

	if key != "" {
		if err := s.purge(context.WithoutCancel(ctx), item.ID, key); err != nil {
			s.logger.Warn("purge deferred to sweeper", "evidence_id", item.ID, "error", err)
		}
	}
	return true, nil
}

// purge removes the bytes and then clears the key. A blob store that fails
// leaves the key set so SweepPurges can retry.
func (s *Service) purge(ctx context.Context, id, key string) error {
	if err := s.blobs.Delete(ctx, key); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(tx store.Tx) error {
		return tx.MarkPurged(ctx, id, key)
	})
}

// PurgeResult reports one sweep.
type PurgeResult struct {
	CandidateCount int   `json:"candidate_count"`
	PurgedCount    int   `json:"purged_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// SweepPurges retries byte removal for deleted items whose key is still set.
// One call processes at most one batch.
func (s *Service) SweepPurges(ctx context.Context, batchSize int, apply bool) (PurgeResult, error) {
	result := PurgeResult{DryRun: !apply}
	if batchSize <= 0 {
		batchSize = s.purgeBatch
	}

	items, err := s.repo.ListPendingPurges(ctx, batchSize)
	if err != nil {
		return result, err
	}
	result.CandidateCount = len(items)

	for _, item := range items {
		if !apply {
			result.ReclaimedBytes += item.FileSizeBytes
			continue
		}
		if err := s.purge(ctx, item.ID, item.StorageKey); err != nil {
			s.logger.Warn("purge failed", "evidence_id", item.ID, "error", err)
			result.FailedCount++
			continue
		}
		result.PurgedCount++
		result.ReclaimedBytes += item.FileSizeBytes
	}
	if apply && result.CandidateCount > 0 {
		s.logger.Info("purge sweep", "purged", result.PurgedCount, "failed", result.FailedCount)
	}
	return result, nil
}
