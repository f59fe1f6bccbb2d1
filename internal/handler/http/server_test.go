package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/geofence-agent/internal/services"
)

func TestHealthChecker(t *testing.T) {
	up := Check{Name: "storage", Fn: func(context.Context) error { return nil }}
	down := Check{Name: "mqtt", Fn: func(context.Context) error { return errors.New("not connected") }}

	srv := NewServer(":0", time.Second, NewGeofenceHandler(&mockGeofenceService{}), NewHealthChecker(up), nil, zerolog.Nop())
	w := do(srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","dependencies":{"storage":{"status":"up"}}}`, w.Body.String())

	srv = NewServer(":0", time.Second, NewGeofenceHandler(&mockGeofenceService{}), NewHealthChecker(up, down), nil, zerolog.Nop())
	w = do(srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status       string                       `json:"status"`
		Dependencies map[string]map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "down", body.Dependencies["mqtt"]["status"])
	assert.Equal(t, "not connected", body.Dependencies["mqtt"]["error"])
	assert.Equal(t, "up", body.Dependencies["storage"]["status"])
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "geofence_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := NewServer(":0", time.Second, NewGeofenceHandler(&mockGeofenceService{}), nil, reg, zerolog.Nop())
	w := do(srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "geofence_test_total 1")

	srv = NewServer(":0", time.Second, NewGeofenceHandler(&mockGeofenceService{}), nil, nil, zerolog.Nop())
	assert.Equal(t, http.StatusNotFound, do(srv.Handler(), http.MethodGet, "/metrics", "").Code)
}

func TestServer_Lifecycle(t *testing.T) {
	svc := &mockGeofenceService{addressFn: func(context.Context, float64, float64) string { return "No Address!" }}
	srv := NewServer("127.0.0.1:0", time.Second, NewGeofenceHandler(svc), NewHealthChecker(), nil, zerolog.Nop())

	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/address?lat=1&lon=2")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"address":"No Address!"}`, string(body))

	require.NoError(t, srv.Stop())
	assert.Error(t, srv.Stop())
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	var _ geofenceService = (*services.GeofenceService)(nil)
}
