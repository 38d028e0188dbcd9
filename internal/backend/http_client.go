package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/lumina-labs/internal/config"
	"github.com/ashureev/lumina-labs/internal/domain"
)

// HTTPClient talks to the generative AI gateway over HTTP. Chat responses
// stream as newline-delimited JSON chunks; course drafts are a single
// JSON response with retry on transient failure.
type HTTPClient struct {
	log           *slog.Logger
	baseURL       string
	apiKey        string
	modelStandard string
	modelPro      string
	httpClient    *http.Client
	maxRetries    int
}

// NewHTTPClient builds a client from configuration.
func NewHTTPClient(cfg config.GenAIConfig, log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClient{
		log:           log.With("component", "backend"),
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		modelStandard: cfg.ModelStandard,
		modelPro:      cfg.ModelPro,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		maxRetries:    cfg.MaxRetries,
	}
}

// CreateChatSession builds a local session handle without network I/O.
func (c *HTTPClient) CreateChatSession(profile domain.Big5Profile, variant domain.ModelVariant) *ChatSession {
	return &ChatSession{profile: profile, variant: variant}
}

func (c *HTTPClient) modelFor(variant domain.ModelVariant) string {
	if variant == domain.VariantPro {
		return c.modelPro
	}
	return c.modelStandard
}

type chatStreamRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	History []historyTurn  `json:"history,omitempty"`
	Message string         `json:"message"`
	Profile map[string]int `json:"profile,omitempty"`
}

func profilePayload(p domain.Big5Profile) map[string]int {
	return map[string]int{
		"openness":          p.Openness,
		"conscientiousness": p.Conscientiousness,
		"extraversion":      p.Extraversion,
		"agreeableness":     p.Agreeableness,
		"neuroticism":       p.Neuroticism,
	}
}

// SendMessageStreamed streams one chat turn. Chunks yield in arrival order;
// the first error ends the sequence. History is updated only after the
// stream completes cleanly.
func (c *HTTPClient) SendMessageStreamed(ctx context.Context, sess *ChatSession, text string) iter.Seq2[TextChunk, error] {
	return func(yield func(TextChunk, error) bool) {
		body := chatStreamRequest{
			Model:   c.modelFor(sess.variant),
			History: sess.snapshotHistory(),
			Message: text,
			Profile: profilePayload(sess.profile),
		}

		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			yield(TextChunk{}, fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/stream", &buf)
		if err != nil {
			yield(TextChunk{}, fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			yield(TextChunk{}, fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield(TextChunk{}, fmt.Errorf("%w: http %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(raw))))
			return
		}

		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			chunk, err := decodeChunk(line)
			if err != nil {
				yield(TextChunk{}, err)
				return
			}
			full.WriteString(chunk.Text)
			if !yield(chunk, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(TextChunk{}, fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}

		sess.appendExchange(text, full.String())
	}
}

type draftRequestBody struct {
	Model         string         `json:"model"`
	Transcript    string         `json:"transcript"`
	IntentSummary string         `json:"intent_summary,omitempty"`
	Profile       map[string]int `json:"profile"`
}

// GenerateCourseDraft requests a complete course draft. Transient failures
// retry with capped exponential backoff and jitter.
func (c *HTTPClient) GenerateCourseDraft(ctx context.Context, req DraftRequest) (*CourseDraft, error) {
	body := draftRequestBody{
		Model:         c.modelFor(req.Variant),
		Transcript:    req.Transcript,
		IntentSummary: req.IntentSummary,
		Profile:       profilePayload(req.Profile),
	}

	var draft CourseDraft
	if err := c.do(ctx, http.MethodPost, "/v1/course/draft", body, &draft); err != nil {
		return nil, err
	}
	if draft.Title == "" || len(draft.Chapters) == 0 {
		return nil, fmt.Errorf("draft response missing title or chapters")
	}
	return &draft, nil
}

// Close releases resources.
func (c *HTTPClient) Close() {
	c.httpClient.CloseIdleConnections()
}

type backendHTTPError struct {
	StatusCode int
	Body       string
}

func (e *backendHTTPError) Error() string {
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *backendHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

// jitterSleep spreads a backoff interval by +/- 20%.
func jitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*(2*delta)
	return time.Duration(v * float64(time.Second))
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &backendHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("backend decode error: %w", uErr)
			}
			return nil
		}

		if !isRetryableErr(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("backend request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
