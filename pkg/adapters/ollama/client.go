// Package ollama provides a Processor backed by the Ollama chat API.
//
// Free-text requests map to /api/chat; structured requests pass the schema
// descriptor as the "format" field; streaming requests read the NDJSON body
// line by line. Timeouts belong to the HTTP client, never to the core.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
)

// DefaultBaseURL is the address of a local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// DefaultModel is used when no model is configured for a class.
const DefaultModel = "llama3.2"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   any       `json:"format,omitempty"`
}

type ChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Client is a ports.Processor talking to an Ollama server.
type Client struct {
	baseURL string
	http    *http.Client
	models  map[domain.ModelClass]string
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (120s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithModel maps a model class to an Ollama model name.
// The ModelDefault class is used whenever a class has no mapping.
func WithModel(class domain.ModelClass, name string) Option {
	return func(cl *Client) {
		cl.models[class] = name
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
		models:  map[domain.ModelClass]string{domain.ModelDefault: DefaultModel},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) model(class domain.ModelClass) string {
	if name, ok := c.models[class]; ok && name != "" {
		return name
	}
	return c.models[domain.ModelDefault]
}

// Process implements ports.Processor.
func (c *Client) Process(ctx context.Context, req ports.Request) (ports.Response, error) {
	chat := ChatRequest{
		Model:    c.model(req.Model),
		Messages: toMessages(req.Messages),
		Stream:   req.Stream && req.Schema == nil,
	}
	if req.Schema != nil {
		chat.Format = req.Schema
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return ports.Response{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	c.logger.DebugContext(ctx, "ollama chat", "step", req.Step, "model", chat.Model, "messages", len(chat.Messages), "stream", chat.Stream)

	if chat.Stream {
		return c.stream(ctx, body)
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return ports.Response{}, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.Response{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if out.Error != "" {
		return ports.Response{}, errors.New("ollama: " + out.Error)
	}
	return ports.Response{Text: out.Message.Content}, nil
}

func (c *Client) stream(ctx context.Context, body []byte) (ports.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		cancel()
		return ports.Response{}, err
	}

	frags := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(frags)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				errc <- fmt.Errorf("failed to decode stream chunk: %w", err)
				return
			}
			if chunk.Error != "" {
				errc <- errors.New("ollama: " + chunk.Error)
				return
			}
			if chunk.Message.Content != "" {
				select {
				case frags <- chunk.Message.Content:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errc <- fmt.Errorf("failed to read stream: %w", err)
			return
		}
		if ctx.Err() == nil {
			errc <- errors.New("stream ended without a done marker")
		}
	}()

	return ports.Response{Stream: ports.NewChanStream(frags, errc, cancel)}, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, errors.New("ollama chat http status: " + resp.Status)
	}
	return resp, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	return nil
}

// ListModels returns the names of the locally available models.
func (c *Client) ListModels(ctx context.Context) (map[string]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make(map[string]struct{}, len(parsed.Models))
	for _, m := range parsed.Models {
		if name := strings.TrimSpace(m.Name); name != "" {
			out[name] = struct{}{}
		}
	}
	return out, nil
}

func toMessages(entries []domain.MemoryEntry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		role := string(e.Role())
		if e.Role() == domain.RoleFunction {
			role = "tool"
		}
		content := e.Text()
		if e.Name() != "" && e.Role() == domain.RoleUser {
			content = e.Name() + ": " + content
		}
		out = append(out, Message{Role: role, Content: content})
	}
	return out
}
