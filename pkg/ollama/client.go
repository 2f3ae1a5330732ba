// Package ollama is an Ollama HTTP client for embeddings and chat answers.
// Every call goes through a shared rate limiter, a circuit breaker and a
// bounded retry.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fleetdesk/fleetrag/pkg/fn"
	"github.com/fleetdesk/fleetrag/pkg/resilience"
)

// SystemPrompt frames answers composed from record context.
const SystemPrompt = `You are an assistant summarizing fleet and order data.
Preserve all field formatting.
Do not use markdown or symbols.
Provide a clear response based only on the provided context.`

var ErrEmptyEmbedding = errors.New("empty embedding")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama %s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("ollama %s: status %d: %s", e.Op, e.Code, e.Body)
}

// Retryable reports whether a failed call may succeed on another attempt.
// Client errors and an open breaker are final.
func Retryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// Config configures the client.
type Config struct {
	BaseURL     string
	EmbedModel  string
	ChatModel   string
	Timeout     time.Duration
	Temperature float64
	Limiter     resilience.LimiterOpts
	Breaker     resilience.BreakerOpts
	Retry       fn.RetryOpts
}

// Client talks to one Ollama server.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// New creates a client. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ollama")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = Retryable
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "ollama"
	}
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		}
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: resilience.NewLimiter(cfg.Limiter),
		breaker: resilience.NewBreaker(cfg.Breaker),
		logger:  logger,
	}
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.call(ctx, "embed", "/api/embeddings", embedRequest{Model: c.cfg.EmbedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: %w", ErrEmptyEmbedding)
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Generate answers question. With context chunks the answer is grounded on
// them under SystemPrompt; without, question is sent as a bare prompt.
func (c *Client) Generate(ctx context.Context, question string, chunks []string) (string, error) {
	req := chatRequest{
		Model:    c.cfg.ChatModel,
		Messages: BuildMessages(question, chunks),
		Options:  map[string]any{"temperature": c.cfg.Temperature},
	}
	var resp chatResponse
	if err := c.call(ctx, "chat", "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return CleanAnswer(resp.Message.Content), nil
}

// BuildMessages lays out the chat messages for a question and its context.
func BuildMessages(question string, chunks []string) []Message {
	if len(chunks) == 0 {
		return []Message{{Role: "user", Content: question}}
	}
	prompt := "Context:\n" + strings.Join(chunks, "\n\n") + "\n\nQuery:\n" + question
	return []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: prompt},
	}
}

// CleanAnswer strips markdown emphasis and backslashes and folds the answer
// onto one line.
func CleanAnswer(s string) string {
	s = strings.NewReplacer("*", "", `\`, "").Replace(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// call posts body to path and decodes the JSON response into out.
func (c *Client) call(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", op, err)
	}
	attempt := func(ctx context.Context) fn.Result[struct{}] {
		if err := c.limiter.Wait(ctx); err != nil {
			return fn.Err[struct{}](err)
		}
		return resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[struct{}] {
			return fn.FromPair(struct{}{}, c.post(ctx, op, path, payload, out))
		})
	}
	start := time.Now()
	_, err = fn.Retry(ctx, c.cfg.Retry, attempt).Unwrap()
	if err != nil {
		c.logger.Warn("ollama call failed", "op", op, "err", err, "took", time.Since(start))
		return err
	}
	c.logger.Debug("ollama call", "op", op, "took", time.Since(start))
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ollama %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama %s decode: %w", op, err)
	}
	return nil
}

type tagModel struct {
	Name string `json:"name"`
}

type tagsResponse struct {
	Models []tagModel `json:"models"`
}

// Models lists the models the server has pulled.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "tags", Code: resp.StatusCode}
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama tags decode: %w", err)
	}
	return fn.Map(tags.Models, func(m tagModel) string { return m.Name }), nil
}
