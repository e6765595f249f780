package models

import (
	"encoding/json"
	"time"
)

// ProofRecord is the durable unit written once per successful proof generation.
type ProofRecord struct {
	Verified  bool            `json:"verified"`
	Payment   PaymentSnapshot `json:"payment"`
	Timestamp time.Time       `json:"timestamp"`
	Proof     json.RawMessage `json:"proof"`
}

// ProofOutcome is what the proof generation path answers with. It is either a
// full record (Verified true) or a non-failure refusal carrying a Message.
type ProofOutcome struct {
	Verified  bool             `json:"verified"`
	Message   string           `json:"message,omitempty"`
	Payment   *PaymentSnapshot `json:"payment,omitempty"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Proof     json.RawMessage  `json:"proof,omitempty"`
}

// Outcome wraps a stored record as a ProofOutcome.
func (r *ProofRecord) Outcome() *ProofOutcome {
	payment := r.Payment
	ts := r.Timestamp
	return &ProofOutcome{
		Verified:  r.Verified,
		Payment:   &payment,
		Timestamp: &ts,
		Proof:     r.Proof,
	}
}

// Skipped builds the outcome for events that do not produce a proof.
func Skipped(message string) *ProofOutcome {
	return &ProofOutcome{Verified: false, Message: message}
}
