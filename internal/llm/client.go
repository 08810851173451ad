// Package llm streams completions from an Ollama backend.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxLineSize bounds a single NDJSON line from the backend.
const maxLineSize = 1024 * 1024

// GenerateRequest describes one completion request.
type GenerateRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Streamer is the model backend contract used by the chat relay.
type Streamer interface {
	// Generate streams completion chunks. The request is attempted once;
	// callers decide whether a failure is worth surfacing or retrying.
	Generate(ctx context.Context, req GenerateRequest) iter.Seq2[string, error]
}

// Client talks to Ollama's /api/generate endpoint.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the given Ollama base URL and model. The
// timeout bounds the whole generation including streaming.
func NewClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type generateBody struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate streams completion chunks from the backend as they arrive.
// A non-2xx status or a malformed stream line surfaces as the iterator's
// error; the request is never retried.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := json.Marshal(generateBody{
			Model:  c.model,
			Prompt: req.Prompt,
			Stream: true,
			Options: generateOptions{
				Temperature: req.Temperature,
				NumPredict:  req.MaxTokens,
			},
		})
		if err != nil {
			yield("", fmt.Errorf("encode generate request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			yield("", fmt.Errorf("build generate request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			yield("", fmt.Errorf("call model backend: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			yield("", fmt.Errorf("model backend returned %d: %s",
				resp.StatusCode, strings.TrimSpace(string(excerpt))))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", fmt.Errorf("decode stream line: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", fmt.Errorf("model backend error: %s", chunk.Error))
				return
			}

			if chunk.Response != "" {
				if !yield(chunk.Response, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("read model stream: %w", err))
			return
		}

		// EOF without a done marker means the backend dropped the stream.
		c.logger.Warn("model stream ended without done marker")
		yield("", fmt.Errorf("model stream ended unexpectedly"))
	}
}
