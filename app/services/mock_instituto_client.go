package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/utils"
)

// MockResponseKind names a simulated partner outcome
type MockResponseKind string

const (
	MockSuccess         MockResponseKind = "success"
	MockValidationError MockResponseKind = "validation_error"
	MockNetworkError    MockResponseKind = "network_error"
	MockServerError     MockResponseKind = "server_error"
	MockRateLimit       MockResponseKind = "rate_limit"
)

type mockResponse struct {
	status  int
	message string
	delay   time.Duration
}

var mockResponses = map[MockResponseKind]mockResponse{
	MockSuccess:         {status: http.StatusCreated, message: "Usuário cadastrado com sucesso no Instituto (MOCK)"},
	MockValidationError: {status: http.StatusUnprocessableEntity, message: "Dados inválidos: CPF já cadastrado (MOCK)", delay: 500 * time.Millisecond},
	MockNetworkError:    {status: 0, message: "Erro de conexão com a API do Instituto (MOCK)", delay: 2 * time.Second},
	MockServerError:     {status: http.StatusInternalServerError, message: "Erro interno do servidor do Instituto (MOCK)", delay: 1500 * time.Millisecond},
	MockRateLimit:       {status: http.StatusTooManyRequests, message: "Limite de requisições excedido (MOCK)", delay: 100 * time.Millisecond},
}

var mockFailureKinds = []MockResponseKind{MockValidationError, MockNetworkError, MockServerError, MockRateLimit}

// MockSentPayload is a recorded call to the mock client
type MockSentPayload struct {
	Payload models.Payload
	Kind    MockResponseKind
	SentAt  time.Time
}

// MockInstitutoClient simulates the partner API for sandboxes and tests
type MockInstitutoClient struct {
	mu          sync.Mutex
	delay       time.Duration
	failureRate float64
	forced      []MockResponseKind
	random      func() float64
	sent        []MockSentPayload
	// ScaleDelays multiplies every simulated latency; tests set it to 0
	ScaleDelays float64
}

// NewMockInstitutoClient fails a failureRate fraction of calls with a random failure kind
func NewMockInstitutoClient(delay time.Duration, failureRate float64) *MockInstitutoClient {
	return &MockInstitutoClient{
		delay:       delay,
		failureRate: failureRate,
		random:      rand.Float64,
		ScaleDelays: 1,
	}
}

// Force queues kinds returned by the next calls, in order
func (m *MockInstitutoClient) Force(kinds ...MockResponseKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = append(m.forced, kinds...)
}

func (m *MockInstitutoClient) Send(ctx context.Context, _ *models.APIConfig, payload models.Payload) (json.RawMessage, error) {
	kind := m.nextKind()
	resp := mockResponses[kind]

	m.mu.Lock()
	m.sent = append(m.sent, MockSentPayload{Payload: payload, Kind: kind, SentAt: utils.UTCNow()})
	delay := resp.delay
	if delay == 0 {
		delay = m.delay
	}
	delay = time.Duration(float64(delay) * m.ScaleDelays)
	m.mu.Unlock()

	if err := sleepCtx(ctx, delay); err != nil {
		return nil, transportError(err)
	}

	if kind != MockSuccess {
		return nil, &APIError{StatusCode: resp.status, Message: resp.message}
	}

	data, err := json.Marshal(map[string]string{
		"id":      fmt.Sprintf("mock-instituto-%d", utils.UTCNow().UnixNano()),
		"status":  "created",
		"message": resp.message,
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *MockInstitutoClient) HealthCheck(context.Context, *models.APIConfig) error {
	return nil
}

func (m *MockInstitutoClient) nextKind() MockResponseKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.forced) > 0 {
		kind := m.forced[0]
		m.forced = m.forced[1:]
		return kind
	}
	if m.random() < m.failureRate {
		idx := int(m.random() * float64(len(mockFailureKinds)))
		return mockFailureKinds[min(idx, len(mockFailureKinds)-1)]
	}
	return MockSuccess
}

// Sent returns a copy of every recorded call
func (m *MockInstitutoClient) Sent() []MockSentPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockSentPayload(nil), m.sent...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
