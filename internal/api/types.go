package api

import (
	"time"

	"evidencevault/internal/models"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	ID string `json:"id"`
}

// EvidenceResponse is the metadata view of one evidence item.
type EvidenceResponse struct {
	models.EvidenceItem
}

// StatusUpdateResponse is returned by an analysis status update.
type StatusUpdateResponse struct {
	ID              string                 `json:"id"`
	LifecycleStatus models.LifecycleStatus `json:"lifecycle_status"`
}

// CustodyPageResponse is one page of custody events.
type CustodyPageResponse struct {
	EvidenceID string                `json:"evidence_id" yaml:"evidence_id"`
	Events     []models.CustodyEvent `json:"events" yaml:"events"`
	NextAfter  int64                 `json:"next_after,omitempty" yaml:"next_after,omitempty"`
	HasMore    bool                  `json:"has_more" yaml:"has_more"`
}

// ChainReportResponse reports a custody chain verification.
type ChainReportResponse struct {
	EvidenceID string    `json:"evidence_id" yaml:"evidence_id"`
	Events     int       `json:"events" yaml:"events"`
	Valid      bool      `json:"valid" yaml:"valid"`
	HeadHash   string    `json:"head_hash,omitempty" yaml:"head_hash,omitempty"`
	BrokenAt   int64     `json:"broken_at,omitempty" yaml:"broken_at,omitempty"`
	Problem    string    `json:"problem,omitempty" yaml:"problem,omitempty"`
	CheckedAt  time.Time `json:"checked_at" yaml:"checked_at"`
}

// DownloadInfo describes a streamed download from its response headers.
type DownloadInfo struct {
	Filename    string
	ContentType string
	Length      int64
	ContentHash string
}

// PurgeResponse reports one purge sweep.
type PurgeResponse struct {
	CandidateCount int   `json:"candidate_count"`
	PurgedCount    int   `json:"purged_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}
