package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(url string, retries int) *SignalNotifier {
	return NewSignalNotifier(SignalConfig{
		URL:             url,
		Account:         "+10000000000",
		Timeout:         2 * time.Second,
		Retries:         retries,
		InitialInterval: time.Millisecond,
	}, zerolog.Nop())
}

func TestSignalSendPayload(t *testing.T) {
	var got rpcRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":{"timestamp":1},"id":"x"}`))
	}))
	defer server.Close()

	err := newTestNotifier(server.URL, 0).Send(context.Background(), "+19999999999", "hello")
	require.NoError(t, err)
	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, "send", got.Method)
	assert.Equal(t, "+10000000000", got.Params.Account)
	assert.Equal(t, []string{"+19999999999"}, got.Params.Recipient)
	assert.Equal(t, "hello", got.Params.Message)
	assert.True(t, strings.HasPrefix(got.ID, "watchdog-"))
}

func TestSignalRPCErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-1,"message":"unregistered"},"id":"x"}`))
	}))
	defer server.Close()

	err := newTestNotifier(server.URL, 3).Send(context.Background(), "+1", "hello")
	assert.ErrorIs(t, err, ErrRPC)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSignalRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":{},"id":"x"}`))
	}))
	defer server.Close()

	require.NoError(t, newTestNotifier(server.URL, 3).Send(context.Background(), "+1", "hello"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSignalGivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := newTestNotifier(server.URL, 2).Send(context.Background(), "+1", "hello")
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSignalUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	assert.Error(t, newTestNotifier(url, 0).Send(context.Background(), "+1", "hello"))
}

func TestConsoleNotifier(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewConsoleNotifier(&out, zerolog.Nop()).Send(context.Background(), "+1", "digest body"))
	assert.Contains(t, out.String(), "\ndigest body\n")
	assert.True(t, strings.HasPrefix(out.String(), strings.Repeat("─", 50)))
}
