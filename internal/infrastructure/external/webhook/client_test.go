package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/pkg/circuitbreaker"
)

func TestClient_PostEnvelope(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotCT     string
		gotBody   []byte
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultClientConfig(srv.URL + "/hooks/attendance")
	cfg.Secret = "hook-secret"
	client := NewClient(cfg)

	err := client.Post(context.Background(), "reminder.digest", map[string]interface{}{
		"subject": "Algebra II",
		"classes": 3,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/hooks/attendance", gotPath)
	assert.Equal(t, "Bearer hook-secret", gotAuth)
	assert.Equal(t, "application/json", gotCT)

	var env envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, "reminder.digest", env.Event)
	assert.WithinDuration(t, time.Now().UTC(), env.SentAt, 5*time.Second)

	payload, ok := env.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Algebra II", payload["subject"])
	assert.Equal(t, float64(3), payload["classes"])
}

func TestClient_NoSecretOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(DefaultClientConfig(srv.URL))
	err := client.Post(context.Background(), "subject.holiday_toggled", nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_ErrorStatusFailsDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(DefaultClientConfig(srv.URL))
	err := client.Post(context.Background(), "record.status_changed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(DefaultClientConfig(srv.URL))
	require.Equal(t, circuitbreaker.StateClosed, client.State())

	for i := 0; i < 5; i++ {
		_ = client.Post(context.Background(), "record.status_changed", nil)
	}
	assert.Equal(t, circuitbreaker.StateOpen, client.State())

	// Open circuit rejects without touching the endpoint.
	err := client.Post(context.Background(), "record.status_changed", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
