package store

import (
	"context"
	"errors"

	"evidencevault/internal/models"
)

var (
	// ErrNotFound reports a missing evidence item.
	ErrNotFound = errors.New("evidence item not found")
	// ErrStatusConflict reports that a compare-and-set status update lost to a concurrent change.
	ErrStatusConflict = errors.New("lifecycle status changed concurrently")
)

// StorageUpdate carries the fields written once the bytes of an item are durable.
type StorageUpdate struct {
	Key           string
	Backend       string
	ContentHash   string
	HashAlgorithm string
	ContentType   string
	SizeBytes     int64
	Width         int
	Height        int
}

// Tx is the write surface available inside WithTx. The ledger exposes
// appends only; custody events are never updated or removed.
type Tx interface {
	CreateEvidence(ctx context.Context, item *models.EvidenceItem) error
	GetEvidence(ctx context.Context, id string) (*models.EvidenceItem, error)
	UpdateStatus(ctx context.Context, id string, from, to models.LifecycleStatus) error
	SetStorage(ctx context.Context, id string, update StorageUpdate) error
	MarkPurged(ctx context.Context, id, key string) error
	AppendEvent(ctx context.Context, event *models.CustodyEvent) error
}

// EvidenceStore is the read surface for evidence metadata.
type EvidenceStore interface {
	GetEvidence(ctx context.Context, id string) (*models.EvidenceItem, error)
	FindByCase(ctx context.Context, caseID string) ([]models.EvidenceItem, error)
	ListPendingPurges(ctx context.Context, limit int) ([]models.EvidenceItem, error)
}

// Ledger is the read surface for custody events.
type Ledger interface {
	ListEvents(ctx context.Context, evidenceID string, afterSequence int64, limit int) (*EventPage, error)
	VerifyChain(ctx context.Context, evidenceID string) (*ChainReport, error)
}

// Repository combines metadata, ledger and transactional writes.
type Repository interface {
	EvidenceStore
	Ledger
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}

var (
	_ Repository = (*Store)(nil)
	_ Tx         = (*sqlTx)(nil)
)
