package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingPayment is returned when an event does not carry a usable payment object.
var ErrMissingPayment = errors.New("event does not contain a payment object")

// Event is a processor notification that has passed signature verification.
type Event struct {
	ID   string    `json:"id,omitempty"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData holds the raw object the event is about.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// PaymentSnapshot is the minimal view of a payment that ends up in a proof.
type PaymentSnapshot struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Payment extracts the PaymentSnapshot from data.object.
// Fields other than id, amount, currency and status are ignored.
func (e *Event) Payment() (PaymentSnapshot, error) {
	var snapshot PaymentSnapshot
	if len(e.Data.Object) == 0 || string(e.Data.Object) == "null" {
		return snapshot, ErrMissingPayment
	}
	if err := json.Unmarshal(e.Data.Object, &snapshot); err != nil {
		return snapshot, fmt.Errorf("decode payment object: %w", err)
	}
	if snapshot.ID == "" {
		return snapshot, fmt.Errorf("%w: missing id", ErrMissingPayment)
	}
	return snapshot, nil
}
