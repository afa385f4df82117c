package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
)

// maxResponseBytes caps how much of an Ollama reply is read.
const maxResponseBytes = 8 << 20

// ErrUnavailable marks every failure to obtain a completion from the model backend.
var ErrUnavailable = errors.New("model backend unavailable")

// StatusError is returned when the backend answers with a non-success status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("model backend returned status %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers treat a bad status as an unavailable backend.
func (e *StatusError) Unwrap() error {
	return ErrUnavailable
}

// Options are the sampling parameters forwarded with every generate call.
type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

// Client talks to an Ollama runtime over its HTTP API.
type Client struct {
	baseURL       string
	model         string
	options       Options
	timeout       time.Duration
	healthTimeout time.Duration
	pullTimeout   time.Duration
	httpClient    *http.Client
}

// NewClient builds a client for the configured model.
func NewClient(cfg config.ModelConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Host, "/"),
		model:   cfg.Name,
		options: Options{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			NumPredict:  cfg.NumPredict,
		},
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		pullTimeout:   cfg.PullTimeout,
		httpClient:    &http.Client{},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

// Generate sends a single non-streaming completion request and returns the trimmed reply.
// It makes exactly one attempt bounded by the configured timeout.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.post(ctx, "/api/generate", generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", err
	}

	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: malformed generate response", ErrUnavailable)
	}

	reply := strings.TrimSpace(gjson.GetBytes(body, "response").String())
	log.WithFields(log.Fields{
		"model":  c.model,
		"length": len(reply),
	}).Debug("model generated reply")
	return reply, nil
}

// Ping checks that the runtime answers its model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to build tags request: %w", err)
	}

	_, err = c.do(req)
	return err
}

// Pull asks the runtime to download the configured model if it is not cached yet.
func (c *Client) Pull(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	body, err := c.post(ctx, "/api/pull", map[string]any{
		"name":   c.model,
		"model":  c.model,
		"stream": false,
	})
	if err != nil {
		return err
	}

	if status := gjson.GetBytes(body, "status").String(); status != "" {
		log.WithFields(log.Fields{"model": c.model, "status": status}).Info("model pull finished")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(body, "error").String(),
		}
	}
	return body, nil
}
