package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/telhawk-systems/payproof/internal/metrics"
)

// ErrNoProof means the engine answered but produced nothing usable: an empty
// proof, or the target response did not match the selector.
var ErrNoProof = errors.New("attestation engine returned no proof")

const (
	fetchPath       = "/v1/zkfetch"
	maxResponseSize = 10 << 20
	tokenAudience   = "attestation-engine"
)

// EngineError reports a non-success answer from the engine.
type EngineError struct {
	Status  int
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine response status %d", e.Status)
	}
	return fmt.Sprintf("engine response status %d: %s", e.Status, e.Message)
}

// Request describes the call the engine makes on our behalf.
type Request struct {
	URL      string
	Method   string
	Selector Selector
	// Headers are sent to the target and may appear in the proof.
	Headers map[string]string
	// SecretHeaders are sent to the target but never disclosed in the proof.
	SecretHeaders map[string]string
}

// Config holds the engine endpoint and application credentials.
type Config struct {
	URL       string
	AppID     string
	AppSecret string
	Timeout   time.Duration
	TokenTTL  time.Duration
}

// Client talks to the attestation engine.
type Client struct {
	baseURL    string
	appID      string
	appSecret  []byte
	tokenTTL   time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// New constructs a Client. The timeout bounds every engine call.
func New(cfg Config) *Client {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = time.Minute
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		appID:     cfg.AppID,
		appSecret: []byte(cfg.AppSecret),
		tokenTTL:  tokenTTL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

type engineRequest struct {
	URL            string         `json:"url"`
	PublicOptions  publicOptions  `json:"publicOptions"`
	PrivateOptions privateOptions `json:"privateOptions"`
}

type publicOptions struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

type privateOptions struct {
	Headers            map[string]string   `json:"headers,omitempty"`
	ResponseMatches    []responseMatch     `json:"responseMatches"`
	ResponseRedactions []responseRedaction `json:"responseRedactions,omitempty"`
}

type responseMatch struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type responseRedaction struct {
	Regex string `json:"regex"`
}

type engineResponse struct {
	Proof json.RawMessage `json:"proof"`
	Error string          `json:"error,omitempty"`
}

// FetchProof asks the engine to fetch req.URL and attest to the selected fields.
// The proof comes back compacted but otherwise untouched. No retries.
func (c *Client) FetchProof(ctx context.Context, req *Request) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("attestation client not configured")
	}
	if req == nil || req.URL == "" {
		return nil, fmt.Errorf("attestation request has no target url")
	}
	if err := req.Selector.Validate(); err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}

	start := time.Now()
	proof, err := c.fetch(ctx, req)
	metrics.AttestationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AttestationErrors.WithLabelValues(errorReason(err)).Inc()
		return nil, err
	}
	return proof, nil
}

func (c *Client) fetch(ctx context.Context, req *Request) (json.RawMessage, error) {
	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	token, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("sign engine token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+fetchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var result engineResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result)

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrNoProof, result.Error)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &EngineError{Status: resp.StatusCode, Message: result.Error}
	case decodeErr != nil:
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}

	trimmed := bytes.TrimSpace(result.Proof)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte(`""`)) {
		return nil, ErrNoProof
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	return json.RawMessage(compact.Bytes()), nil
}

func (c *Client) buildPayload(req *Request) engineRequest {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var redactions []responseRedaction
	for _, regex := range req.Selector.Redactions() {
		redactions = append(redactions, responseRedaction{Regex: regex})
	}

	return engineRequest{
		URL: req.URL,
		PublicOptions: publicOptions{
			Method:  method,
			Headers: req.Headers,
		},
		PrivateOptions: privateOptions{
			Headers:            req.SecretHeaders,
			ResponseMatches:    []responseMatch{{Type: "regex", Value: req.Selector.Pattern()}},
			ResponseRedactions: redactions,
		},
	}
}

// token issues a short-lived HS256 token identifying this application.
func (c *Client) token() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.appID,
		Subject:   c.appID,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
		ID:        uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.appSecret)
}

func errorReason(err error) string {
	var netErr net.Error
	var engineErr *EngineError
	switch {
	case errors.Is(err, ErrNoProof):
		return "no_proof"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &engineErr):
		return "engine"
	default:
		return "transport"
	}
}
