package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Generator = (*GeminiGenerator)(nil)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiGenerator implements Generator against the Gemini REST API using the
// streamGenerateContent endpoint in SSE mode. Deltas are forwarded to the
// caller as they arrive on the wire.
type GeminiGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// GeminiConfig configures the generator adapter.
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewGeminiGenerator creates a new Gemini generation client.
func NewGeminiGenerator(cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		// Covers the full stream, not just connection setup
		timeout = 5 * time.Minute
	}

	return &GeminiGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Stream generates an answer for prompt with the named model, invoking
// onDelta for each text fragment as it arrives. A 429 response is reported
// as ErrRateLimited so callers can fall back to another model.
func (g *GeminiGenerator) Stream(ctx context.Context, model string, prompt string, onDelta func(text string)) error {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", g.baseURL, model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: model %s", domain.ErrRateLimited, model)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("generation failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return g.consumeSSE(ctx, resp.Body, onDelta)
}

// consumeSSE reads "data: {...}" lines and forwards candidate text parts.
// Lines that are not data events (comments, blank keep-alives) are skipped.
func (g *GeminiGenerator) consumeSSE(ctx context.Context, body io.Reader, onDelta func(text string)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk geminiChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("failed to decode stream chunk: %w", err)
		}

		for _, candidate := range chunk.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					onDelta(part.Text)
				}
			}
			// Only the first candidate carries the answer
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}

// Ping checks if the generation backend is reachable. It lists models rather
// than generating, so health checks don't consume quota.
func (g *GeminiGenerator) Ping(ctx context.Context) error {
	url := g.baseURL + "/v1beta/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generation backend unhealthy (%d)", resp.StatusCode)
	}
	return nil
}

// Close releases resources held by the generator.
func (g *GeminiGenerator) Close() error {
	g.client.CloseIdleConnections()
	return nil
}
