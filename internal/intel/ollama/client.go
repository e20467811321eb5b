// Package ollama implements intel.Completer against an Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Defaults mirror the settings the prompts were tuned with.
const (
	DefaultTemperature = 0.25
	DefaultNumCtx      = 512
	DefaultTimeout     = 60 * time.Second
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	NumCtx      int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client talks to /api/generate and falls back to /api/chat.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("ollama base url required")
	}
	if cfg.Model == "" {
		return nil, errors.New("ollama model required")
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.NumCtx <= 0 {
		cfg.NumCtx = DefaultNumCtx
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// Complete returns the completion for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	opts := options{Temperature: c.cfg.Temperature, NumCtx: c.cfg.NumCtx}

	var gen generateResponse
	genErr := c.post(ctx, "/api/generate", generateRequest{Model: c.cfg.Model, Prompt: prompt, Options: opts}, &gen)
	if genErr == nil && gen.Error != "" {
		genErr = fmt.Errorf("generate: %s", gen.Error)
	}
	if genErr == nil {
		return clean(gen.Response), nil
	}
	if ctx.Err() != nil {
		return "", genErr
	}
	c.logger.Debug("generate endpoint failed, trying chat", zap.Error(genErr))

	var chat chatResponse
	req := chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Options:  opts,
	}
	chatErr := c.post(ctx, "/api/chat", req, &chat)
	if chatErr == nil && chat.Error != "" {
		chatErr = fmt.Errorf("chat: %s", chat.Error)
	}
	if chatErr != nil {
		return "", errors.Join(genErr, chatErr)
	}
	return clean(chat.Message.Content), nil
}

func clean(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return harvest.Transient("ollama "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return harvest.Transient("ollama "+path, statusErr)
		}
		return fmt.Errorf("ollama %s: %w", path, statusErr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return harvest.Malformed("ollama "+path, err)
	}
	return nil
}
