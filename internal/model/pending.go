package model

import (
	"encoding/json"
	"time"
)

// PendingActionKind names the operation awaiting the user's next reply.
type PendingActionKind string

const (
	// PendingRegister is a transaction draft awaiting yes/no.
	PendingRegister PendingActionKind = "register"
	// PendingEdit is an edit draft awaiting yes/no.
	PendingEdit PendingActionKind = "edit"
	// PendingDelete is a delete draft awaiting yes/no.
	PendingDelete PendingActionKind = "delete"
	// PendingDisambiguate awaits a short reference code picking one of
	// several matching entries.
	PendingDisambiguate PendingActionKind = "disambiguate"
)

// PendingAction is a draft operation stored against a conversation until the
// next inbound message resolves it or its TTL expires.
type PendingAction struct {
	CreatedAt time.Time         `json:"created_at"`
	Kind      PendingActionKind `json:"kind"`
	Payload   json.RawMessage   `json:"payload"`
	// Codes lists the valid reference codes when Kind is PendingDisambiguate.
	Codes []string `json:"codes,omitempty"`
	// Next is the action to stage once a disambiguation code is chosen.
	Next PendingActionKind `json:"next,omitempty"`
}

// HasCode reports whether code is among the valid disambiguation options.
// Validation is independent of whether the code format itself is well-formed.
func (p *PendingAction) HasCode(code string) bool {
	for _, c := range p.Codes {
		if c == code {
			return true
		}
	}
	return false
}
