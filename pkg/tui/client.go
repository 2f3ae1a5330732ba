package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Reply is one answer from the chat API.
type Reply struct {
	ID       string   `json:"id"`
	Domain   string   `json:"domain"`
	Branch   string   `json:"branch"`
	Response []string `json:"response"`
	Matches  int      `json:"matches"`
	Failed   bool     `json:"failed"`
}

// Text joins the response lines.
func (r Reply) Text() string { return strings.Join(r.Response, "\n") }

// ChatPort is the TUI-facing subset of the API.
type ChatPort interface {
	Chat(ctx context.Context, domain, query string) (Reply, error)
	Title(ctx context.Context, message string) (string, error)
}

// Client calls the fleetrag HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Chat sends query to the domain's chat endpoint.
func (c *Client) Chat(ctx context.Context, domain, query string) (Reply, error) {
	var out Reply
	err := c.post(ctx, "/api/chat/"+domain, map[string]string{"query": query}, &out)
	return out, err
}

// Title asks the API for a short conversation title.
func (c *Client) Title(ctx context.Context, message string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := c.post(ctx, "/api/title", map[string]string{"message": message}, &out); err != nil {
		return "", err
	}
	return out.Title, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("api %s: %s", path, e.Error)
		}
		return fmt.Errorf("api %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api %s decode: %w", path, err)
	}
	return nil
}
