package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() models.Payload {
	return models.NewUserDataPayload(models.InstitutoUserData{
		Nome:                     "Maria da Silva",
		Email:                    "maria@example.com",
		Telefone:                 "11987654321",
		CPF:                      "52998224725",
		OrigemCadastro:           models.OrigemVisaoItinerante,
		ConsentimentoDataSharing: true,
		CreatedAt:                "2024-05-01T10:00:00Z",
	})
}

func TestHTTPInstitutoClient_SendSuccess(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc","status":"created"}`))
	}))
	defer srv.Close()

	cfg := &models.APIConfig{Endpoint: srv.URL, Method: "PUT", AuthType: models.AuthTypeAPIKey, Credentials: models.Credentials{APIKey: "key-1"}}
	client := NewHTTPInstitutoClient(time.Second, time.Second, 0)

	data, err := client.Send(context.Background(), cfg, testPayload())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","status":"created"}`, string(data))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "key-1", gotHeader.Get("X-API-Key"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "maria@example.com", gotBody["email"])
	assert.Equal(t, true, gotBody["consentimento_data_sharing"])
	assert.NotContains(t, gotBody, "kind")
}

func TestHTTPInstitutoClient_AuthHeaders(t *testing.T) {
	tests := []struct {
		name  string
		cfg   models.APIConfig
		check func(t *testing.T, h http.Header)
	}{
		{
			name: "bearer",
			cfg:  models.APIConfig{AuthType: models.AuthTypeBearer, Credentials: models.Credentials{BearerToken: "tok"}},
			check: func(t *testing.T, h http.Header) {
				assert.Equal(t, "Bearer tok", h.Get("Authorization"))
			},
		},
		{
			name: "basic",
			cfg:  models.APIConfig{AuthType: models.AuthTypeBasic, Credentials: models.Credentials{BasicUsername: "u", BasicPassword: "p"}},
			check: func(t *testing.T, h http.Header) {
				assert.Equal(t, "Basic dTpw", h.Get("Authorization"))
			},
		},
		{
			name: "basic without password",
			cfg:  models.APIConfig{AuthType: models.AuthTypeBasic, Credentials: models.Credentials{BasicUsername: "u"}},
			check: func(t *testing.T, h http.Header) {
				assert.Empty(t, h.Get("Authorization"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			setAuthHeaders(h, &tt.cfg)
			tt.check(t, h)
		})
	}
}

func TestHTTPInstitutoClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"message field", http.StatusUnprocessableEntity, `{"message":"CPF inválido"}`, "CPF inválido"},
		{"error field", http.StatusUnauthorized, `{"error":"bad key"}`, "bad key"},
		{"no json", http.StatusBadGateway, `<html>oops</html>`, "HTTP 502"},
		{"empty", http.StatusTooManyRequests, ``, "HTTP 429"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewHTTPInstitutoClient(time.Second, time.Second, 0)
			_, err := client.Send(context.Background(), &models.APIConfig{Endpoint: srv.URL, Method: "POST"}, testPayload())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestHTTPInstitutoClient_TransportErrors(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	client := NewHTTPInstitutoClient(50*time.Millisecond, time.Second, 0)
	_, err := client.Send(context.Background(), &models.APIConfig{Endpoint: slow.URL}, testPayload())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Timeout)
	assert.Equal(t, msgTimeout, apiErr.Message)
	assert.Equal(t, 0, apiErr.StatusCode)

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	_, err = client.Send(context.Background(), &models.APIConfig{Endpoint: url}, testPayload())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, msgNetworkError, apiErr.Message)

	_, err = client.Send(context.Background(), &models.APIConfig{Endpoint: url}, models.Payload{})
	assert.ErrorIs(t, err, models.ErrPayloadEmpty)
}

func TestHTTPInstitutoClient_HealthCheck(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Header.Get("Authorization") != "Bearer ok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPInstitutoClient(time.Second, time.Second, 0)
	cfg := &models.APIConfig{Endpoint: srv.URL + "/users/", AuthType: models.AuthTypeBearer, Credentials: models.Credentials{BearerToken: "ok"}}

	require.NoError(t, client.HealthCheck(context.Background(), cfg))
	assert.Equal(t, "/users/health", path)

	cfg.Credentials.BearerToken = "wrong"
	err := client.HealthCheck(context.Background(), cfg)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestHTTPInstitutoClient_RateSmoothingHonoursContext(t *testing.T) {
	client := NewHTTPInstitutoClient(time.Second, time.Second, 0.001)
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Send(ctx, &models.APIConfig{Endpoint: "http://127.0.0.1:1"}, testPayload())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.StatusCode)
}

func TestMockInstitutoClient(t *testing.T) {
	m := NewMockInstitutoClient(time.Second, 0)
	m.ScaleDelays = 0

	data, err := m.Send(context.Background(), nil, testPayload())
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "created", body["status"])

	m.Force(MockValidationError, MockNetworkError, MockServerError, MockRateLimit)
	wantStatus := []int{http.StatusUnprocessableEntity, 0, http.StatusInternalServerError, http.StatusTooManyRequests}
	for _, status := range wantStatus {
		_, err := m.Send(context.Background(), nil, testPayload())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, status, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "(MOCK)")
	}

	sent := m.Sent()
	require.Len(t, sent, 5)
	assert.Equal(t, MockSuccess, sent[0].Kind)
	assert.Equal(t, MockRateLimit, sent[4].Kind)
	assert.NoError(t, m.HealthCheck(context.Background(), nil))
}

func TestMockInstitutoClient_FailureRate(t *testing.T) {
	m := NewMockInstitutoClient(0, 1)
	m.ScaleDelays = 0
	for i := 0; i < 20; i++ {
		_, err := m.Send(context.Background(), nil, testPayload())
		assert.Error(t, err)
	}
}

func TestMockInstitutoClient_DelayHonoursContext(t *testing.T) {
	m := NewMockInstitutoClient(time.Hour, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Send(ctx, nil, testPayload())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Timeout)
}
