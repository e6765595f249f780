package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/telhawk-systems/payproof/common/logging"
	"github.com/telhawk-systems/payproof/common/messaging"
	"github.com/telhawk-systems/payproof/common/middleware"
	"github.com/telhawk-systems/payproof/internal/models"
	"github.com/telhawk-systems/payproof/internal/webhook"
)

// envelope is the reply body on the proof generation subject.
type envelope struct {
	Outcome *models.ProofOutcome `json:"outcome,omitempty"`
	Error   string               `json:"error,omitempty"`
	Details string               `json:"details,omitempty"`
	Status  int                  `json:"status,omitempty"`
}

// NATSClient forwards events over NATS request/reply.
type NATSClient struct {
	requester messaging.Requester
	subject   string
	timeout   time.Duration
}

// NewNATSClient constructs a NATSClient. An empty subject selects the default.
func NewNATSClient(requester messaging.Requester, subject string, timeout time.Duration) *NATSClient {
	if subject == "" {
		subject = messaging.SubjectProofsGenerate
	}
	return &NATSClient{requester: requester, subject: subject, timeout: timeout}
}

// Generate sends the event and waits for a single reply.
func (c *NATSClient) Generate(ctx context.Context, event *models.Event) (*models.ProofOutcome, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg := &messaging.Message{
		Subject:  c.subject,
		Data:     data,
		Metadata: map[string]string{},
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		msg.Metadata[middleware.HeaderRequestID] = id
	}

	reply, err := c.requester.RequestMsg(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %w", ErrTransport, c.subject, err)
	}

	var env envelope
	if err := json.Unmarshal(reply.Data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrTransport, err)
	}
	if env.Error != "" {
		return nil, &RemoteError{Status: env.Status, Message: env.Error, Details: env.Details}
	}
	if env.Outcome == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrTransport)
	}
	return env.Outcome, nil
}

// NATSResponder serves proof generation requests from a queue group.
type NATSResponder struct {
	subscriber messaging.Subscriber
	publisher  messaging.Publisher
	generator  webhook.Generator
	subject    string
	queue      string
	logger     *logging.Logger
	sub        messaging.Subscription
}

// NewNATSResponder constructs a responder. Empty subject or queue select the defaults.
func NewNATSResponder(subscriber messaging.Subscriber, publisher messaging.Publisher, generator webhook.Generator, subject, queue string, logger *logging.Logger) *NATSResponder {
	if subject == "" {
		subject = messaging.SubjectProofsGenerate
	}
	if queue == "" {
		queue = messaging.QueueProofWorkers
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NATSResponder{
		subscriber: subscriber,
		publisher:  publisher,
		generator:  generator,
		subject:    subject,
		queue:      queue,
		logger:     logger,
	}
}

// Start subscribes to the generation subject.
func (r *NATSResponder) Start() error {
	sub, err := r.subscriber.QueueSubscribe(r.subject, r.queue, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.subject, err)
	}
	r.sub = sub
	r.logger.Info("NATS proof responder started",
		"subject", r.subject,
		"queue", r.queue,
	)
	return nil
}

// Stop unsubscribes.
func (r *NATSResponder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *NATSResponder) handle(ctx context.Context, msg *messaging.Message) error {
	if msg.Reply == "" {
		return errors.New("request without reply subject")
	}
	if id := msg.Metadata[middleware.HeaderRequestID]; id != "" {
		ctx = middleware.WithRequestID(ctx, id)
	}

	var env envelope
	var event models.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		env = envelope{Error: "Invalid event", Details: err.Error(), Status: http.StatusBadRequest}
	} else if outcome, err := r.generator.Generate(ctx, &event); err != nil {
		env = envelope{Error: "Failed to generate proof", Details: err.Error(), Status: StatusFor(err)}
	} else {
		env = envelope{Outcome: outcome}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	if err := r.publisher.PublishMsg(ctx, &messaging.Message{Subject: msg.Reply, Data: data}); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish proof reply", logging.Error(err))
		return err
	}
	return nil
}
