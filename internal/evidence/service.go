// Package evidence is the entry point for every access to evidence bytes.
// Each access is authorized, performed and recorded in the custody ledger.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"evidencevault/internal/blobstore"
	"evidencevault/internal/integrity"
	"evidencevault/internal/models"
	"evidencevault/internal/notify"
	"evidencevault/internal/policy"
	"evidencevault/internal/store"
)

const (
	defaultPurgeBatch = 100
	publishTimeout    = 5 * time.Second
	ledgerTimeout     = 10 * time.Second
)

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	ID     string
	Role   string
	Origin string
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return invalidInput("actor id is required")
	}
	return nil
}

// Service coordinates the blob store, metadata store, custody ledger and policy.
type Service struct {
	repo      store.Repository
	blobs     blobstore.BlobStore
	hasher    integrity.Hasher
	publisher notify.Publisher
	logger    *slog.Logger

	enforceUploadPolicy bool
	purgeBatch          int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where committed custody events are announced.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithUploadPolicy makes uploads require upload privilege. Off by default:
// any authenticated actor may upload.
func WithUploadPolicy(enforce bool) Option {
	return func(s *Service) { s.enforceUploadPolicy = enforce }
}

// WithPurgeBatch sets the default sweep batch size.
func WithPurgeBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.purgeBatch = n
		}
	}
}

// NewService constructs a Service.
func NewService(repo store.Repository, blobs blobstore.BlobStore, hasher integrity.Hasher, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		blobs:      blobs,
		hasher:     hasher,
		publisher:  notify.NopPublisher{},
		logger:     slog.Default(),
		purgeBatch: defaultPurgeBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "evidence")
	return s
}

// Get returns item metadata. Metadata reads are not custody events.
func (s *Service) Get(ctx context.Context, id string) (*models.EvidenceItem, error) {
	item, err := s.repo.GetEvidence(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// GetWithCustody returns item metadata with its full custody trail.
func (s *Service) GetWithCustody(ctx context.Context, id string) (*models.EvidenceItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	trail := []models.CustodyEvent{}
	var after int64
	for {
		page, err := s.repo.ListEvents(ctx, item.ID, after, 0)
		if err != nil {
			return nil, err
		}
		trail = append(trail, page.Events...)
		if !page.HasMore {
			break
		}
		after = page.NextAfter
	}
	item.CustodyTrail = trail
	return item, nil
}

// FindByCase lists the items of a case, tombstones included.
func (s *Service) FindByCase(ctx context.Context, caseID string) ([]models.EvidenceItem, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, invalidInput("case id is required")
	}
	return s.repo.FindByCase(ctx, caseID)
}

// CustodyTrail returns one page of an item's custody events.
func (s *Service) CustodyTrail(ctx context.Context, id string, after int64, limit int) (*store.EventPage, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, item.ID, after, limit)
}

// VerifyCustody recomputes the item's custody hash chain.
func (s *Service) VerifyCustody(ctx context.Context, id string) (*store.ChainReport, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := s.repo.VerifyChain(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		s.logger.Error("custody chain broken", "evidence_id", item.ID, "sequence", report.BrokenAt, "problem", report.Problem)
	}
	return report, nil
}

// record appends one event in its own transaction and announces it.
func (s *Service) record(ctx context.Context, item *models.EvidenceItem, ev *models.CustodyEvent) error {
	ev.EvidenceID = item.ID
	if err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		return tx.AppendEvent(ctx, ev)
	}); err != nil {
		return fmt.Errorf("append %s event: %w", ev.Action, err)
	}
	s.announce(ctx, item.CaseID, ev)
	return nil
}

// recordDenial writes the *_DENIED event for a refused access and returns the error to surface.
func (s *Service) recordDenial(ctx context.Context, item *models.EvidenceItem, action models.Action, op policy.Operation, actor Actor, d policy.Decision, reason string) error {
	ev := newEvent(action, models.OutcomeDenied, actor, denialReason(d.Code, reason))
	if err := s.record(ctx, item, ev); err != nil {
		return err
	}
	s.logger.Warn("access denied",
		"evidence_id", item.ID,
		"operation", string(op),
		"actor_id", actor.ID,
		"actor_role", actor.Role,
		"code", string(d.Code),
	)
	return &DeniedError{Op: op, Code: d.Code}
}

// announce publishes a committed event. Failures never affect the operation.
func (s *Service) announce(ctx context.Context, caseID string, ev *models.CustodyEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, notify.NoticeFromEvent(ev, caseID)); err != nil {
		s.logger.Warn("publish custody notice failed", "event_id", ev.EventID, "action", string(ev.Action), "error", err)
	}
}

func newEvent(action models.Action, outcome models.Outcome, actor Actor, reason string) *models.CustodyEvent {
	return &models.CustodyEvent{
		Action:       action,
		Outcome:      outcome,
		ActorID:      strings.TrimSpace(actor.ID),
		ActorRole:    string(models.NormalizeRole(actor.Role)),
		ClientOrigin: strings.TrimSpace(actor.Origin),
		Reason:       reason,
	}
}

func denialReason(code policy.Code, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return string(code)
	}
	return string(code) + ": " + reason
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
