package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"evidencevault/internal/models"
)

const evidenceColumns = "id, original_filename, content_type, file_size_bytes, width, height, case_id, uploader_id, uploader_role, upload_timestamp, content_hash, hash_algorithm, storage_backend, storage_key, lifecycle_status, updated_at"

const (
	defaultPurgeBatch = 100
	maxPurgeBatch     = 1000
)

// GetEvidence returns one item, or nil when it does not exist.
func (s *Store) GetEvidence(ctx context.Context, id string) (*models.EvidenceItem, error) {
	return getEvidence(ctx, s.db, id)
}

// FindByCase lists every item of a case, tombstones included, oldest upload first.
func (s *Store) FindByCase(ctx context.Context, caseID string) ([]models.EvidenceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidence_items WHERE case_id = ? ORDER BY upload_timestamp ASC, id ASC`,
		caseID)
	if err != nil {
		return nil, err
	}
	return collectEvidence(rows)
}

// ListPendingPurges returns deleted items whose bytes have not been removed yet.
func (s *Store) ListPendingPurges(ctx context.Context, limit int) ([]models.EvidenceItem, error) {
	if limit <= 0 {
		limit = defaultPurgeBatch
	}
	if limit > maxPurgeBatch {
		limit = maxPurgeBatch
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidence_items
		 WHERE lifecycle_status = ? AND storage_key IS NOT NULL AND storage_key != ''
		 ORDER BY updated_at ASC, id ASC LIMIT ?`,
		string(models.StatusDeleted), limit)
	if err != nil {
		return nil, err
	}
	return collectEvidence(rows)
}

func (t *sqlTx) GetEvidence(ctx context.Context, id string) (*models.EvidenceItem, error) {
	return getEvidence(ctx, t.tx, id)
}

// CreateEvidence inserts a new item. Storage fields are written later by SetStorage.
func (t *sqlTx) CreateEvidence(ctx context.Context, item *models.EvidenceItem) error {
	if item == nil {
		return fmt.Errorf("evidence item is required")
	}
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("evidence id is required")
	}
	if !models.IsValidLifecycleStatus(item.LifecycleStatus) {
		return fmt.Errorf("invalid status: %s", item.LifecycleStatus)
	}

	now := time.Now().UTC()
	if item.UploadTimestamp.IsZero() {
		item.UploadTimestamp = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.UploadTimestamp
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO evidence_items (`+evidenceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.OriginalFilename,
		item.ContentType,
		item.FileSizeBytes,
		item.Width,
		item.Height,
		item.CaseID,
		item.UploaderID,
		item.UploaderRole,
		dbFormatTime(item.UploadTimestamp),
		nullString(item.ContentHash),
		nullString(item.HashAlgorithm),
		nullString(item.StorageBackend),
		nullString(item.StorageKey),
		string(item.LifecycleStatus),
		dbFormatTime(item.UpdatedAt),
	)
	return err
}

// UpdateStatus moves an item from one status to another only if it is still in from.
func (t *sqlTx) UpdateStatus(ctx context.Context, id string, from, to models.LifecycleStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE evidence_items SET lifecycle_status = ?, updated_at = ? WHERE id = ? AND lifecycle_status = ?`,
		string(to), dbFormatTime(time.Now()), id, string(from))
	if err != nil {
		return err
	}
	return t.requireAffected(ctx, res, id, ErrStatusConflict)
}

// SetStorage records where the bytes live and what they hash to.
func (t *sqlTx) SetStorage(ctx context.Context, id string, update StorageUpdate) error {
	if strings.TrimSpace(update.Key) == "" {
		return fmt.Errorf("storage key is required")
	}
	if strings.TrimSpace(update.ContentHash) == "" {
		return fmt.Errorf("content hash is required")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE evidence_items
		 SET storage_key = ?, storage_backend = ?, content_hash = ?, hash_algorithm = ?,
		     content_type = COALESCE(NULLIF(?, ''), content_type),
		     file_size_bytes = ?, width = ?, height = ?, updated_at = ?
		 WHERE id = ?`,
		update.Key, update.Backend, update.ContentHash, update.HashAlgorithm,
		update.ContentType,
		update.SizeBytes, update.Width, update.Height, dbFormatTime(time.Now()),
		id)
	if err != nil {
		return err
	}
	return t.requireAffected(ctx, res, id, nil)
}

// MarkPurged clears the storage key if it still equals key. Clearing an
// already-cleared key is a no-op.
func (t *sqlTx) MarkPurged(ctx context.Context, id, key string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE evidence_items SET storage_key = NULL, updated_at = ? WHERE id = ? AND storage_key = ?`,
		dbFormatTime(time.Now()), id, key)
	return err
}

// requireAffected maps a zero-row update to ErrNotFound, or to conflict when the row exists.
func (t *sqlTx) requireAffected(ctx context.Context, res sql.Result, id string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := evidenceExists(ctx, t.tx, id)
	if err != nil {
		return err
	}
	if !exists || conflict == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conflict
}

func getEvidence(ctx context.Context, q querier, id string) (*models.EvidenceItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence_items WHERE id = ?`, id)
	return scanEvidence(row)
}

func evidenceExists(ctx context.Context, q querier, id string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM evidence_items WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func collectEvidence(rows *sql.Rows) ([]models.EvidenceItem, error) {
	defer rows.Close()

	items := []models.EvidenceItem{}
	for rows.Next() {
		item, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanEvidence(scanner interface {
	Scan(dest ...any) error
}) (*models.EvidenceItem, error) {
	item := models.EvidenceItem{}

	var contentHash, hashAlgorithm, storageBackend, storageKey sql.NullString
	var status, uploadedAt, updatedAt string

	err := scanner.Scan(
		&item.ID,
		&item.OriginalFilename,
		&item.ContentType,
		&item.FileSizeBytes,
		&item.Width,
		&item.Height,
		&item.CaseID,
		&item.UploaderID,
		&item.UploaderRole,
		&uploadedAt,
		&contentHash,
		&hashAlgorithm,
		&storageBackend,
		&storageKey,
		&status,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	item.ContentHash = contentHash.String
	item.HashAlgorithm = hashAlgorithm.String
	item.StorageBackend = storageBackend.String
	item.StorageKey = storageKey.String
	item.LifecycleStatus = models.LifecycleStatus(status)

	if item.UploadTimestamp, err = dbParseTime(uploadedAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
