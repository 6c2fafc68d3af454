package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"

	"evidencevault/internal/blobstore"
	"evidencevault/internal/integrity"
	"evidencevault/internal/models"
	"evidencevault/internal/policy"
)

// Download is an authorized, already-recorded content stream. Reading it to
// EOF verifies the digest; a mismatch surfaces as ErrIntegrityViolation.
type Download struct {
	EvidenceID    string
	Filename      string
	ContentType   string
	Length        int64
	ContentHash   string
	HashAlgorithm string
	Reader        io.ReadCloser
}

// Retrieve authorizes and records a content access and returns the stream.
// The DOWNLOAD event is durable before the stream is returned.
func (s *Service) Retrieve(ctx context.Context, id, reason string, actor Actor) (*Download, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsPurged() {
		return nil, ErrNotFound
	}

	if d := policy.Authorize(actor.Role, policy.OpDownload, item, reason); !d.Allowed {
		return nil, s.recordDenial(ctx, item, models.ActionDownloadDenied, policy.OpDownload, actor, d, reason)
	}
	// A deleted item awaiting purge still has bytes, but they are no longer served.
	if item.LifecycleStatus == models.StatusDeleted {
		return nil, ErrNotFound
	}

	hasher, err := integrity.NewHasher(integrity.Algorithm(item.HashAlgorithm))
	if err != nil {
		return nil, fmt.Errorf("evidence %s: %w", item.ID, err)
	}
	if item.StorageBackend != "" && item.StorageBackend != s.blobs.Name() {
		err := fmt.Errorf("item stored on backend %q, configured backend is %q", item.StorageBackend, s.blobs.Name())
		return nil, s.failDownload(ctx, item, actor, reason, err)
	}

	rc, err := s.blobs.Open(ctx, item.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			// Purged between lookup and open.
			return nil, ErrNotFound
		}
		return nil, s.failDownload(ctx, item, actor, reason, err)
	}

	ev := newEvent(models.ActionDownload, models.OutcomeSucceeded, actor, reason)
	if err := s.record(ctx, item, ev); err != nil {
		_ = rc.Close()
		return nil, err
	}

	verifier := hasher.NewVerifyingReader(rc, item.ContentHash, func(actual string) {
		s.reportIntegrityViolation(ctx, item, actor, actual)
	})
	return &Download{
		EvidenceID:    item.ID,
		Filename:      item.OriginalFilename,
		ContentType:   item.ContentType,
		Length:        item.FileSizeBytes,
		ContentHash:   item.ContentHash,
		HashAlgorithm: item.HashAlgorithm,
		Reader:        &downloadStream{rc: verifier},
	}, nil
}

func (s *Service) failDownload(ctx context.Context, item *models.EvidenceItem, actor Actor, reason string, cause error) error {
	s.logger.Error("blob open failed", "evidence_id", item.ID, "error", cause)
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	ev := newEvent(models.ActionDownload, models.OutcomeFailed, actor, storageFailureNote+cause.Error())
	if reason != "" {
		ev.Reason = reason + "; " + ev.Reason
	}
	if err := s.record(ledgerCtx, item, ev); err != nil {
		s.logger.Error("record download failure", "evidence_id", item.ID, "error", err)
	}
	return storageFailure(cause)
}

// reportIntegrityViolation runs once per stream, after the caller has consumed
// every byte, so it records on a context detached from the request.
func (s *Service) reportIntegrityViolation(ctx context.Context, item *models.EvidenceItem, actor Actor, actual string) {
	s.logger.Error("integrity violation",
		"evidence_id", item.ID,
		"case_id", item.CaseID,
		"expected_hash", item.ContentHash,
		"actual_hash", actual,
		"actor_id", actor.ID,
	)
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	reason := fmt.Sprintf("expected %s %s, got %s", item.HashAlgorithm, item.ContentHash, actual)
	ev := newEvent(models.ActionIntegrityViolation, models.OutcomeFailed, actor, reason)
	if err := s.record(ledgerCtx, item, ev); err != nil {
		s.logger.Error("record integrity violation", "evidence_id", item.ID, "error", err)
	}
}

// downloadStream maps transport errors to ErrStorageFailure and leaves EOF
// and integrity verdicts untouched.
type downloadStream struct {
	rc io.ReadCloser
}

func (d *downloadStream) Read(p []byte) (int, error) {
	n, err := d.rc.Read(p)
	if err == nil || err == io.EOF || errors.Is(err, ErrIntegrityViolation) {
		return n, err
	}
	return n, storageFailure(err)
}

func (d *downloadStream) Close() error {
	return d.rc.Close()
}
