package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRPC is returned when the messaging daemon answers with an error object.
var ErrRPC = errors.New("signal rpc error")

// SignalConfig configures the signal-cli JSON-RPC client.
type SignalConfig struct {
	URL             string
	Account         string
	Timeout         time.Duration
	Retries         int
	InitialInterval time.Duration
}

// SignalNotifier sends messages through a signal-cli JSON-RPC daemon.
type SignalNotifier struct {
	config SignalConfig
	client *http.Client
	logger zerolog.Logger
}

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  sendParams `json:"params"`
	ID      string     `json:"id"`
}

type sendParams struct {
	Account   string   `json:"account"`
	Recipient []string `json:"recipient"`
	Message   string   `json:"message"`
}

type rpcResponse struct {
	Error json.RawMessage `json:"error,omitempty"`
}

// NewSignalNotifier creates a new Signal notifier.
func NewSignalNotifier(config SignalConfig, logger zerolog.Logger) *SignalNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = time.Second
	}
	return &SignalNotifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Send delivers message to recipient. Transport failures and 5xx answers
// are retried with exponential backoff; an RPC error is final.
func (n *SignalNotifier) Send(ctx context.Context, recipient, message string) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "send",
		Params: sendParams{
			Account:   n.config.Account,
			Recipient: []string{recipient},
			Message:   message,
		},
		ID: "watchdog-" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = n.config.InitialInterval
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0

	var retry backoff.BackOff = backoff.WithMaxRetries(expBackoff, uint64(max(n.config.Retries, 0)))
	retry = backoff.WithContext(retry, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := n.post(ctx, payload)
		if err != nil {
			n.logger.Warn().Err(err).Int("attempt", attempt).Msg("Signal send attempt failed")
		}
		return err
	}

	if err := backoff.Retry(operation, retry); err != nil {
		return fmt.Errorf("signal send failed after %d attempts: %w", attempt, err)
	}
	return nil
}

func (n *SignalNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(decoded.Error) > 0 && string(decoded.Error) != "null" {
		return backoff.Permanent(fmt.Errorf("%w: %s", ErrRPC, decoded.Error))
	}
	return nil
}
