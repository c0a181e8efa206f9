package observability

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Endpoints(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var ready atomic.Bool
	srv := NewServer("127.0.0.1:0", NewRegistry(), ready.Load)
	require.NoError(t, srv.Listen())
	base := "http://" + srv.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	code, body := get(t, base+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get(t, base+"/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	ready.Store(true)
	code, _ = get(t, base+"/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "instancer_instances_live")
	assert.Contains(t, body, "go_goroutines")

	http.DefaultClient.CloseIdleConnections()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := NewServer("256.0.0.1:bad", prometheus.NewRegistry(), nil)
	assert.Error(t, srv.Run(context.Background()))
	assert.Empty(t, srv.Addr())
}
