// Package notify publishes committed custody events to downstream consumers.
package notify

import (
	"context"
	"strings"
	"time"

	"evidencevault/internal/models"
)

// Notice is the payload published after a custody event commits.
type Notice struct {
	EventID      string         `json:"event_id"`
	EvidenceID   string         `json:"evidence_id"`
	CaseID       string         `json:"case_id,omitempty"`
	Sequence     int64          `json:"sequence"`
	Action       models.Action  `json:"action"`
	Outcome      models.Outcome `json:"outcome"`
	ActorID      string         `json:"actor_id"`
	ActorRole    string         `json:"actor_role"`
	ClientOrigin string         `json:"client_origin,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	EventHash    string         `json:"event_hash"`
}

// NoticeFromEvent builds a notice for a committed event.
func NoticeFromEvent(ev *models.CustodyEvent, caseID string) Notice {
	return Notice{
		EventID:      ev.EventID,
		EvidenceID:   ev.EvidenceID,
		CaseID:       caseID,
		Sequence:     ev.Sequence,
		Action:       ev.Action,
		Outcome:      ev.Outcome,
		ActorID:      ev.ActorID,
		ActorRole:    ev.ActorRole,
		ClientOrigin: ev.ClientOrigin,
		Reason:       ev.Reason,
		Timestamp:    ev.Timestamp,
		EventHash:    ev.EventHash,
	}
}

// Publisher delivers notices. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, n Notice) error
	Close() error
}

// NopPublisher drops every notice.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Notice) error { return nil }
func (NopPublisher) Close() error                          { return nil }

// Subject returns "<prefix>.<action lowercase>".
func Subject(prefix string, action models.Action) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + strings.ToLower(string(action))
}
