package models

import "time"

// CustodyEvent is one immutable fact about an access to an evidence item.
type CustodyEvent struct {
	EventID      string    `json:"event_id" yaml:"event_id"`
	EvidenceID   string    `json:"evidence_id" yaml:"evidence_id"`
	Sequence     int64     `json:"sequence" yaml:"sequence"`
	Action       Action    `json:"action" yaml:"action"`
	Outcome      Outcome   `json:"outcome" yaml:"outcome"`
	ActorID      string    `json:"actor_id" yaml:"actor_id"`
	ActorRole    string    `json:"actor_role" yaml:"actor_role"`
	ClientOrigin string    `json:"client_origin,omitempty" yaml:"client_origin,omitempty"`
	Reason       string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	PrevHash     string    `json:"prev_hash,omitempty" yaml:"prev_hash,omitempty"`
	EventHash    string    `json:"event_hash" yaml:"event_hash"`
}
