package models

import (
	"fmt"
	"strings"
)

// LifecycleStatus defines allowed lifecycle states for evidence items.
type LifecycleStatus string

const (
	StatusUploaded           LifecycleStatus = "UPLOADED"
	StatusAnalysisInProgress LifecycleStatus = "ANALYSIS_IN_PROGRESS"
	StatusAnalysisComplete   LifecycleStatus = "ANALYSIS_COMPLETE"
	StatusDeleted            LifecycleStatus = "DELETED"
)

// Action names one kind of custody event.
type Action string

const (
	ActionUpload             Action = "UPLOAD"
	ActionDownload           Action = "DOWNLOAD"
	ActionStatusUpdate       Action = "STATUS_UPDATE"
	ActionDelete             Action = "DELETE"
	ActionDeleteDenied       Action = "DELETE_DENIED"
	ActionDownloadDenied     Action = "DOWNLOAD_DENIED"
	ActionIntegrityViolation Action = "INTEGRITY_VIOLATION"
)

// Outcome records how the access recorded by a custody event ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeDenied    Outcome = "DENIED"
)

// Role is the actor role declared by the identity service.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleService      Role = "SERVICE"
	RoleUploader     Role = "UPLOADER"
	RoleExpert       Role = "EXPERT"
	RoleViewer       Role = "VIEWER"
	RoleInvestigator Role = "INVESTIGATOR"
	RoleLawyer       Role = "LAWYER"
	RoleJudge        Role = "JUDGE"
)

// statusRank orders the non-terminal states; DELETED is handled separately.
var statusRank = map[LifecycleStatus]int{
	StatusUploaded:           1,
	StatusAnalysisInProgress: 2,
	StatusAnalysisComplete:   3,
}

var validActions = map[Action]struct{}{
	ActionUpload:             {},
	ActionDownload:           {},
	ActionStatusUpdate:       {},
	ActionDelete:             {},
	ActionDeleteDenied:       {},
	ActionDownloadDenied:     {},
	ActionIntegrityViolation: {},
}

var validOutcomes = map[Outcome]struct{}{
	OutcomeSucceeded: {},
	OutcomeFailed:    {},
	OutcomeDenied:    {},
}

func IsValidLifecycleStatus(status LifecycleStatus) bool {
	if status == StatusDeleted {
		return true
	}
	_, ok := statusRank[status]
	return ok
}

// IsTerminal reports whether no transition may leave status.
func (s LifecycleStatus) IsTerminal() bool {
	return s == StatusDeleted
}

// Rank returns the forward order of a non-terminal status, or 0.
func (s LifecycleStatus) Rank() int {
	return statusRank[s]
}

func IsValidAction(action Action) bool {
	_, ok := validActions[action]
	return ok
}

func IsValidOutcome(outcome Outcome) bool {
	_, ok := validOutcomes[outcome]
	return ok
}

// ParseLifecycleStatus accepts any case and "-" or " " as word separators.
func ParseLifecycleStatus(raw string) (LifecycleStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	value := LifecycleStatus(normalized)
	if value == "" {
		return "", fmt.Errorf("status is required")
	}
	if !IsValidLifecycleStatus(value) {
		return "", fmt.Errorf("invalid status: %s", strings.TrimSpace(raw))
	}
	return value, nil
}

// NormalizeRole canonicalizes a declared role name.
func NormalizeRole(raw string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(raw)))
}
