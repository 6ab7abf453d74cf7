package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/saludtb/tb-assistant/pkg/logging"
)

const defaultModelTimeout = 30 * time.Second

// ModelClient talks to an OpenAI-style completion endpoint hosting the
// clinic's fine-tuned model.
type ModelClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logging.Logger
}

type ModelOption func(*ModelClient)

func WithModelTimeout(d time.Duration) ModelOption {
	return func(c *ModelClient) {
		c.httpClient.Timeout = d
	}
}

func WithModelHTTPClient(hc *http.Client) ModelOption {
	return func(c *ModelClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewModelClient(baseURL, model string, logger *logging.Logger, opts ...ModelOption) *ModelClient {
	if baseURL == "" {
		panic("conversation: model base URL is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &ModelClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: defaultModelTimeout},
		logger:     logger.Named("model"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete posts the prompt to /v1/completions and returns the first
// choice. The response shape tolerates both the choices array and the
// flat text field some servers return.
func (c *ModelClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("conversation: marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("conversation: build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("conversation: completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("conversation: read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversation: completion returned status %d", resp.StatusCode)
	}

	text := gjson.GetBytes(body, "choices.0.text")
	if !text.Exists() {
		text = gjson.GetBytes(body, "text")
	}
	if !text.Exists() {
		return nil, fmt.Errorf("conversation: completion response has no text")
	}

	out := &CompletionResponse{
		Text:       text.String(),
		TokensUsed: int(gjson.GetBytes(body, "usage.total_tokens").Int()),
	}
	c.logger.Debug("completion generated",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"tokens", out.TokensUsed)
	return out, nil
}

// Health checks the model server's liveness endpoint.
func (c *ModelClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("conversation: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("conversation: model health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("conversation: model health returned status %d", resp.StatusCode)
	}
	return nil
}
