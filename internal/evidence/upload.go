package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"evidencevault/internal/models"
	"evidencevault/internal/policy"
	"evidencevault/internal/store"
)

const (
	sniffLen           = 64 << 10
	fallbackMediaType  = "application/octet-stream"
	storageFailureNote = "storage failure: "
)

// StoreInput describes one upload.
type StoreInput struct {
	CaseID      string
	Filename    string
	ContentType string
	Content     io.Reader
}

// Store ingests content as a new evidence item and returns its id.
//
// The item row is created first with no storage key. If the blob write
// fails the item stays in that state, an UPLOAD event with outcome FAILED
// is recorded, and the returned id is still valid alongside ErrStorageFailure.
func (s *Service) Store(ctx context.Context, in StoreInput, actor Actor) (string, error) {
	if err := actor.validate(); err != nil {
		return "", err
	}
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return "", invalidInput("case id is required")
	}
	if in.Content == nil {
		return "", invalidInput("content is required")
	}
	if s.enforceUploadPolicy {
		if d := policy.Authorize(actor.Role, policy.OpUpload, nil, ""); !d.Allowed {
			s.logger.Warn("upload denied", "actor_id", actor.ID, "actor_role", actor.Role, "code", string(d.Code))
			return "", &DeniedError{Op: policy.OpUpload, Code: d.Code}
		}
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Content, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", invalidInput("read content: %v", err)
	}
	head = head[:n]
	if n == 0 {
		return "", invalidInput("content is empty")
	}

	width, height, imageFormat := imageConfig(head)
	item := &models.EvidenceItem{
		ID:               uuid.NewString(),
		OriginalFilename: cleanFilename(in.Filename),
		ContentType:      resolveContentType(in.ContentType, head, imageFormat),
		Width:            width,
		Height:           height,
		CaseID:           caseID,
		UploaderID:       strings.TrimSpace(actor.ID),
		UploaderRole:     string(models.NormalizeRole(actor.Role)),
		UploadTimestamp:  time.Now().UTC(),
		HashAlgorithm:    string(s.hasher.Algorithm()),
		StorageBackend:   s.blobs.Name(),
		LifecycleStatus:  models.StatusUploaded,
	}
	if err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateEvidence(ctx, item)
	}); err != nil {
		return "", fmt.Errorf("create evidence: %w", err)
	}

	hr := s.hasher.NewHashingReader(io.MultiReader(bytes.NewReader(head), in.Content))
	put, err := s.blobs.Put(ctx, hr)
	if err != nil {
		s.logger.Error("blob write failed", "evidence_id", item.ID, "error", err)
		s.recordUploadFailure(ctx, item, actor, err)
		return item.ID, storageFailure(err)
	}

	update := store.StorageUpdate{
		Key:           put.Key,
		Backend:       s.blobs.Name(),
		ContentHash:   hr.Sum(),
		HashAlgorithm: string(s.hasher.Algorithm()),
		SizeBytes:     put.SizeBytes,
		Width:         width,
		Height:        height,
	}
	ev := newEvent(models.ActionUpload, models.OutcomeSucceeded, actor, "")
	ev.EvidenceID = item.ID
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.SetStorage(ctx, item.ID, update); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		// Metadata never committed the key, so the blob must not outlive it.
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), put.Key); delErr != nil {
			s.logger.Error("remove orphaned blob failed", "evidence_id", item.ID, "key", put.Key, "error", delErr)
		}
		s.recordUploadFailure(ctx, item, actor, err)
		return item.ID, storageFailure(err)
	}

	s.announce(ctx, caseID, ev)
	s.logger.Info("evidence stored",
		"evidence_id", item.ID,
		"case_id", caseID,
		"size_bytes", put.SizeBytes,
		"content_hash", update.ContentHash,
	)
	return item.ID, nil
}

func (s *Service) recordUploadFailure(ctx context.Context, item *models.EvidenceItem, actor Actor, cause error) {
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	ev := newEvent(models.ActionUpload, models.OutcomeFailed, actor, storageFailureNote+cause.Error())
	if err := s.record(ledgerCtx, item, ev); err != nil {
		s.logger.Error("record upload failure", "evidence_id", item.ID, "error", err)
	}
}

// imageConfig reads dimensions from any registered image format
// (png, jpeg, gif, bmp, tiff, webp). Other content yields zeros.
func imageConfig(head []byte) (int, int, string) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(head))
	if err != nil {
		return 0, 0, ""
	}
	return cfg.Width, cfg.Height, name
}

// resolveContentType prefers a specific declared type, then sniffing, then
// the decoded image format.
func resolveContentType(declared string, head []byte, imageFormat string) string {
	if mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil && mediaType != fallbackMediaType {
		return mediaType
	}
	sniffed, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err == nil && sniffed != "" && sniffed != fallbackMediaType {
		return sniffed
	}
	if imageFormat != "" {
		return "image/" + imageFormat
	}
	return fallbackMediaType
}

func cleanFilename(raw string) string {
	name := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	if name == "" {
		return "upload"
	}
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}
