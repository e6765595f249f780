package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/payproof/common/httputil"
	"github.com/telhawk-systems/payproof/common/middleware"
	"github.com/telhawk-systems/payproof/internal/models"
)

// HTTPClient forwards events to a remote /generate-proof endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient constructs an HTTPClient. The timeout bounds the whole exchange.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate posts the event and returns the remote outcome. It does not retry.
func (c *HTTPClient) Generate(ctx context.Context, event *models.Event) (*models.ProofOutcome, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: http client not configured", ErrTransport)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-proof", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	request.Header.Set("Content-Type", "application/json")
	if id := middleware.GetRequestID(ctx); id != "" {
		request.Header.Set(middleware.HeaderRequestID, id)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody httputil.ErrorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: errBody.Error, Details: errBody.Details}
	}

	var outcome models.ProofOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	return &outcome, nil
}
