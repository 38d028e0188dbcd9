package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/lumina-labs/internal/config"
	"github.com/ashureev/lumina-labs/internal/domain"
)

func TestDecodeChunk(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"flat text", `{"text":"hello"}`, "hello", false},
		{"nested delta", `{"delta":{"text":"world"}}`, "world", false},
		{"empty text is valid", `{"text":""}`, "", false},
		{"no text field", `{"usage":{"tokens":3}}`, "", true},
		{"empty delta", `{"delta":{}}`, "", true},
		{"invalid json", `{not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, err := decodeChunk([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedStream) {
					t.Fatalf("expected ErrMalformedStream, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if chunk.Text != tt.want {
				t.Errorf("got %q, want %q", chunk.Text, tt.want)
			}
		})
	}
}

func testClient(t *testing.T, srv *httptest.Server, retries int) *HTTPClient {
	t.Helper()
	return NewHTTPClient(config.GenAIConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		ModelStandard: "model-standard",
		ModelPro:      "model-pro",
		Timeout:       5 * time.Second,
		MaxRetries:    retries,
	}, nil)
}

func TestSendMessageStreamedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, `{"text":"chunk%d "}`+"\n", i)
		}
	}))
	defer srv.Close()

	c := testClient(t, srv, 0)
	sess := c.CreateChatSession(domain.NeutralProfile(), domain.VariantStandard)

	var got strings.Builder
	for chunk, err := range c.SendMessageStreamed(context.Background(), sess, "hi") {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		got.WriteString(chunk.Text)
	}

	want := "chunk0 chunk1 chunk2 chunk3 chunk4 "
	if got.String() != want {
		t.Errorf("got %q, want %q", got.String(), want)
	}

	// A clean stream records the exchange in session history.
	hist := sess.snapshotHistory()
	if len(hist) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(hist))
	}
	if hist[0].Role != "user" || hist[0].Text != "hi" {
		t.Errorf("unexpected user turn: %+v", hist[0])
	}
	if hist[1].Role != "model" || hist[1].Text != want {
		t.Errorf("unexpected model turn: %+v", hist[1])
	}
}

func TestSendMessageStreamedMalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"text":"ok "}`)
		fmt.Fprintln(w, `{"usage":{"tokens":1}}`)
		fmt.Fprintln(w, `{"text":"never seen"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, 0)
	sess := c.CreateChatSession(domain.NeutralProfile(), domain.VariantStandard)

	var got strings.Builder
	var streamErr error
	for chunk, err := range c.SendMessageStreamed(context.Background(), sess, "hi") {
		if err != nil {
			streamErr = err
			break
		}
		got.WriteString(chunk.Text)
	}

	if !errors.Is(streamErr, ErrMalformedStream) {
		t.Fatalf("expected ErrMalformedStream, got %v", streamErr)
	}
	if got.String() != "ok " {
		t.Errorf("chunks before failure = %q, want %q", got.String(), "ok ")
	}
	// A failed stream must not pollute session history.
	if n := len(sess.snapshotHistory()); n != 0 {
		t.Errorf("expected empty history after failed stream, got %d turns", n)
	}
}

func TestSendMessageStreamedTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv, 0)
	sess := c.CreateChatSession(domain.NeutralProfile(), domain.VariantStandard)

	var streamErr error
	for _, err := range c.SendMessageStreamed(context.Background(), sess, "hi") {
		if err != nil {
			streamErr = err
			break
		}
	}
	if !errors.Is(streamErr, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", streamErr)
	}
}

func TestGenerateCourseDraftRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"title":"T","description":"D","duration":"1 week","chapters":[{"title":"C1","content":"x"}]}`)
	}))
	defer srv.Close()

	c := testClient(t, srv, 2)
	draft, err := c.GenerateCourseDraft(context.Background(), DraftRequest{
		Transcript: "user: teach me",
		Profile:    domain.NeutralProfile(),
		Variant:    domain.VariantPro,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Title != "T" || len(draft.Chapters) != 1 {
		t.Errorf("unexpected draft: %+v", draft)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestGenerateCourseDraftNonRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv, 3)
	_, err := c.GenerateCourseDraft(context.Background(), DraftRequest{Variant: domain.VariantStandard})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call for non-retryable status, got %d", got)
	}
}

func TestMockClientStreams(t *testing.T) {
	c := NewMockClient(nil)
	sess := c.CreateChatSession(domain.NeutralProfile(), domain.VariantStandard)

	var got strings.Builder
	for chunk, err := range c.SendMessageStreamed(context.Background(), sess, "I want to learn Blender") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got.WriteString(chunk.Text)
	}
	if got.Len() == 0 {
		t.Fatal("expected non-empty reply")
	}

	draft, err := c.GenerateCourseDraft(context.Background(), DraftRequest{Variant: domain.VariantStandard})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(draft.Chapters) == 0 {
		t.Error("expected chapters in mock draft")
	}
}
