package models

import "time"

// EvidenceItem is one binary file under custody.
//
// StorageKey is empty before the bytes are written and after they are purged.
type EvidenceItem struct {
	ID               string          `json:"id"`
	OriginalFilename string          `json:"original_filename"`
	ContentType      string          `json:"content_type"`
	FileSizeBytes    int64           `json:"file_size_bytes"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	CaseID           string          `json:"case_id"`
	UploaderID       string          `json:"uploader_id"`
	UploaderRole     string          `json:"uploader_role"`
	UploadTimestamp  time.Time       `json:"upload_timestamp"`
	ContentHash      string          `json:"content_hash,omitempty"`
	HashAlgorithm    string          `json:"hash_algorithm,omitempty"`
	StorageBackend   string          `json:"storage_backend,omitempty"`
	StorageKey       string          `json:"storage_key,omitempty"`
	LifecycleStatus  LifecycleStatus `json:"lifecycle_status"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CustodyTrail     []CustodyEvent  `json:"custody_trail,omitempty"`
}

// IsPurged reports whether the item has no retrievable bytes.
func (e *EvidenceItem) IsPurged() bool {
	return e == nil || e.StorageKey == ""
}
