package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldPaymentID = "payment_id"
	FieldProofName = "proof_name"
	FieldTransport = "transport"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for a processor event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for a processor event type.
func EventType(eventType string) slog.Attr {
	return slog.String(FieldEventType, eventType)
}

// PaymentID returns a slog attribute for a payment identifier.
func PaymentID(id string) slog.Attr {
	return slog.String(FieldPaymentID, id)
}

// ProofName returns a slog attribute for a stored proof record name.
func ProofName(name string) slog.Attr {
	return slog.String(FieldProofName, name)
}

// Transport returns a slog attribute for the gateway dispatch transport.
func Transport(name string) slog.Attr {
	return slog.String(FieldTransport, name)
}
