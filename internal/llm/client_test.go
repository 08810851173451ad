package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, c *Client, req GenerateRequest) (string, error) {
	t.Helper()
	var b strings.Builder
	for chunk, err := range c.Generate(context.Background(), req) {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func TestGenerateStreamsChunks(t *testing.T) {
	var gotBody generateBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"response":"Boo","done":false}`+"\n")
		io.WriteString(w, `{"response":"!","done":false}`+"\n")
		io.WriteString(w, `{"response":"","done":true}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 5*time.Second, testLogger())
	got, err := collect(t, c, GenerateRequest{Prompt: "hello", Temperature: 0.8, MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Boo!" {
		t.Errorf("output = %q, want %q", got, "Boo!")
	}

	if gotBody.Model != "llama3" || gotBody.Prompt != "hello" || !gotBody.Stream {
		t.Errorf("request body = %+v", gotBody)
	}
	if gotBody.Options.Temperature != 0.8 || gotBody.Options.NumPredict != 100 {
		t.Errorf("options = %+v", gotBody.Options)
	}
}

func TestGenerateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 5*time.Second, testLogger())
	_, err := collect(t, c, GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry status and body excerpt: %v", err)
	}
}

func TestGenerateBackendErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"par","done":false}`+"\n")
		io.WriteString(w, `{"error":"out of memory"}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 5*time.Second, testLogger())
	got, err := collect(t, c, GenerateRequest{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected backend error, got %q err=%v", got, err)
	}
	if got != "par" {
		t.Errorf("chunks before the error should be delivered, got %q", got)
	}
}

func TestGenerateMalformedLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 5*time.Second, testLogger())
	if _, err := collect(t, c, GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for malformed stream line")
	}
}

func TestGenerateTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"half","done":false}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 5*time.Second, testLogger())
	got, err := collect(t, c, GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error when stream ends without done marker")
	}
	if got != "half" {
		t.Errorf("partial output = %q, want %q", got, "half")
	}
}

func TestGenerateStopsWhenConsumerBreaks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			io.WriteString(w, `{"response":"x","done":false}`+"\n")
		}
		io.WriteString(w, `{"response":"","done":true}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 5*time.Second, testLogger())
	seen := 0
	for chunk, err := range c.Generate(context.Background(), GenerateRequest{Prompt: "hi"}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_ = chunk
		seen++
		if seen == 3 {
			break
		}
	}
	if seen != 3 {
		t.Errorf("seen = %d, want 3", seen)
	}
}
