// Package policy decides whether an actor may perform an action on an
// evidence item and which lifecycle transitions are legal.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"evidencevault/internal/models"
)

// Operation is an access the policy can rule on.
type Operation string

const (
	OpUpload       Operation = "upload"
	OpDownload     Operation = "download"
	OpDelete       Operation = "delete"
	OpStatusUpdate Operation = "status_update"
)

// Code explains a denial.
type Code string

const (
	CodeRoleNotPermitted Code = "ROLE_NOT_PERMITTED"
	CodeReasonRequired   Code = "REASON_REQUIRED"
	CodeItemDeleted      Code = "ITEM_DELETED"
	CodeUnknownRole      Code = "UNKNOWN_ROLE"
)

// Decision is the verdict for one request.
type Decision struct {
	Allowed bool `json:"allowed"`
	Code    Code `json:"code,omitempty"`
}

// Allow is the decision for a permitted access.
var Allow = Decision{Allowed: true}

func deny(code Code) Decision { return Decision{Code: code} }

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	return fmt.Sprintf("denied (%s)", d.Code)
}

type privilege int

const (
	privNone privilege = iota
	privViewer
	privUpload
	privAdmin
)

var rolePrivilege = map[models.Role]privilege{
	models.RoleAdmin:        privAdmin,
	models.RoleService:      privUpload,
	models.RoleUploader:     privUpload,
	models.RoleExpert:       privUpload,
	models.RoleViewer:       privViewer,
	models.RoleInvestigator: privViewer,
	models.RoleLawyer:       privViewer,
	models.RoleJudge:        privViewer,
}

func privilegeOf(role string) (privilege, bool) {
	p, ok := rolePrivilege[models.NormalizeRole(role)]
	return p, ok
}

// Authorize rules on op by an actor holding role against item. item may be
// nil for uploads. reason is only consulted for deletes.
func Authorize(role string, op Operation, item *models.EvidenceItem, reason string) Decision {
	priv, known := privilegeOf(role)
	if !known {
		return deny(CodeUnknownRole)
	}

	switch op {
	case OpUpload, OpStatusUpdate:
		if priv < privUpload {
			return deny(CodeRoleNotPermitted)
		}
		return Allow
	case OpDownload:
		if priv < privViewer {
			return deny(CodeRoleNotPermitted)
		}
		if item != nil && item.LifecycleStatus == models.StatusDeleted && priv < privAdmin {
			return deny(CodeItemDeleted)
		}
		return Allow
	case OpDelete:
		if priv < privAdmin {
			return deny(CodeRoleNotPermitted)
		}
		if strings.TrimSpace(reason) == "" {
			return deny(CodeReasonRequired)
		}
		return Allow
	default:
		return deny(CodeRoleNotPermitted)
	}
}

// ErrInvalidTransition reports a lifecycle change the state machine forbids.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// CheckTransition validates a lifecycle change. Staying in the same state is
// allowed; moving backwards or out of DELETED is not.
func CheckTransition(from, to models.LifecycleStatus) error {
	if !models.IsValidLifecycleStatus(from) || !models.IsValidLifecycleStatus(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == to {
		return nil
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == models.StatusDeleted {
		return nil
	}
	if to.Rank() < from.Rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
