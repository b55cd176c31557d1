package rpchealth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(w http.ResponseWriter, method string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		handler(w, req.Method)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPChecker_Healthy(t *testing.T) {
	var gotMethod string
	srv := rpcServer(t, func(w http.ResponseWriter, method string) {
		gotMethod = method
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	})

	err := NewHTTPChecker().Check(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "getHealth", gotMethod)
}

func TestHTTPChecker_Unhealthy(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"rpc error", `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"Node is behind"}}`},
		{"non ok result", `{"jsonrpc":"2.0","id":1,"result":"behind"}`},
		{"missing result", `{"jsonrpc":"2.0","id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rpcServer(t, func(w http.ResponseWriter, _ string) {
				_, _ = w.Write([]byte(tt.body))
			})

			err := NewHTTPChecker().Check(context.Background(), srv.URL)
			assert.ErrorIs(t, err, ErrUnhealthy)
		})
	}
}

func TestHTTPChecker_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(w http.ResponseWriter, _ string) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	})

	c := NewHTTPChecker(WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	require.NoError(t, c.Check(context.Background(), srv.URL))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPChecker_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(w http.ResponseWriter, _ string) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := NewHTTPChecker(WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	err := c.Check(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPChecker_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(w http.ResponseWriter, _ string) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	c := NewHTTPChecker(WithMaxRetries(3), WithBaseBackoff(time.Millisecond))
	err := c.Check(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPChecker_ContextCancelled(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, _ string) {
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPChecker(WithMaxRetries(3), WithBaseBackoff(time.Hour))
	err := c.Check(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&retryableError{err: errors.New("x")}))
	assert.False(t, isRetryable(errors.New("x")))
}
