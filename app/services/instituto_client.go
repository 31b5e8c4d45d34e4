package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"golang.org/x/time/rate"
)

const (
	msgNetworkError = "Erro de conexão com a API do Instituto"
	msgTimeout      = "Timeout na conexão com a API do Instituto"
	maxResponseBody = 1 << 20
)

// APIError describes a failed call to the partner API. StatusCode is 0 when no response arrived.
type APIError struct {
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("partner api status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// InstitutoClient sends user registrations to the partner API
type InstitutoClient interface {
	Send(ctx context.Context, cfg *models.APIConfig, payload models.Payload) (json.RawMessage, error)
	HealthCheck(ctx context.Context, cfg *models.APIConfig) error
}

// HTTPInstitutoClient is the real partner client. Outbound calls are smoothed by a token bucket.
type HTTPInstitutoClient struct {
	client        *http.Client
	limiter       *rate.Limiter
	healthTimeout time.Duration
}

func NewHTTPInstitutoClient(timeout, healthTimeout time.Duration, rps float64) *HTTPInstitutoClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if healthTimeout <= 0 {
		healthTimeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &HTTPInstitutoClient{
		client:        &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, burst),
		healthTimeout: healthTimeout,
	}
}

func (c *HTTPInstitutoClient) Send(ctx context.Context, cfg *models.APIConfig, payload models.Payload) (json.RawMessage, error) {
	body, err := payload.Body()
	if err != nil {
		return nil, err
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal partner request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Message: msgNetworkError, Err: err}
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.ActiveEndpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setAuthHeaders(req.Header, cfg)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError(err)
	}
	data := normalizeJSON(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: responseMessage(data, resp.StatusCode)}
	}
	return data, nil
}

// HealthCheck issues GET {endpoint}/health with the configured auth headers
func (c *HTTPInstitutoClient) HealthCheck(ctx context.Context, cfg *models.APIConfig) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HealthEndpoint(), nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	setAuthHeaders(req.Header, cfg)

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return nil
}

func setAuthHeaders(h http.Header, cfg *models.APIConfig) {
	creds := cfg.Credentials
	switch cfg.AuthType {
	case models.AuthTypeAPIKey:
		if creds.APIKey != "" {
			h.Set("X-API-Key", creds.APIKey)
		}
	case models.AuthTypeBearer:
		if creds.BearerToken != "" {
			h.Set("Authorization", "Bearer "+creds.BearerToken)
		}
	case models.AuthTypeBasic:
		if creds.BasicUsername != "" && creds.BasicPassword != "" {
			token := base64.StdEncoding.EncodeToString([]byte(creds.BasicUsername + ":" + creds.BasicPassword))
			h.Set("Authorization", "Basic "+token)
		}
	}
}

func transportError(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Message: msgTimeout, Timeout: true, Err: err}
	}
	return &APIError{Message: msgNetworkError, Err: err}
}

// normalizeJSON returns raw when it is a JSON document and {} otherwise
func normalizeJSON(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}

func responseMessage(data json.RawMessage, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}
