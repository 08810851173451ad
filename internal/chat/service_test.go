package chat

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spookylabs/spookygpt/internal/characters"
	"github.com/spookylabs/spookygpt/internal/contextcache"
	"github.com/spookylabs/spookygpt/internal/cooldown"
	"github.com/spookylabs/spookygpt/internal/led"
	"github.com/spookylabs/spookygpt/internal/ledger"
	"github.com/spookylabs/spookygpt/internal/llm"
)

// fakeBackend is a scripted llm.Streamer.
type fakeBackend struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	requests []llm.GenerateRequest
}

func (f *fakeBackend) Generate(_ context.Context, req llm.GenerateRequest) iter.Seq2[string, error] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	chunks, err := f.chunks, f.err
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (f *fakeBackend) lastRequest(t *testing.T) llm.GenerateRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("backend was never called")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fixture struct {
	service *Service
	backend *fakeBackend
	gate    *cooldown.Gate
	ledger  *ledger.Ledger
	bridge  *led.Bridge
	cache   *contextcache.Cache
	paused  *atomic.Bool
}

func newFixture(threshold int, duration time.Duration) *fixture {
	f := &fixture{
		backend: &fakeBackend{chunks: []string{"Boo", "!"}},
		gate:    cooldown.New(threshold, duration),
		ledger:  ledger.New(100),
		bridge:  led.New(led.ModeAlways, "LED_COLOR:255,140,0:3000"),
		cache:   contextcache.New(5, time.Hour),
		paused:  &atomic.Bool{},
	}
	f.service = NewService(
		characters.NewRegistry(), f.cache, f.gate, f.ledger, f.bridge,
		f.backend, f.paused,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func drain(t *testing.T, res *Result) string {
	t.Helper()
	var b strings.Builder
	for chunk, err := range res.Stream {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		b.WriteString(chunk)
	}
	return b.String()
}

func TestChatEmptyPromptRejected(t *testing.T) {
	f := newFixture(5, 15*time.Second)
	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: prompt})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("prompt %q: err = %v, want ErrInvalidInput", prompt, err)
		}
	}
	if f.backend.calls() != 0 {
		t.Error("backend must not be called for invalid input")
	}
	if f.ledger.Total() != 0 {
		t.Error("rejected requests must not be counted")
	}
}

func TestChatPausedRejected(t *testing.T) {
	f := newFixture(5, 15*time.Second)
	f.paused.Store(true)
	if _, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "hi"}); !errors.Is(err, ErrPaused) {
		t.Errorf("err = %v, want ErrPaused", err)
	}
	if f.ledger.Total() != 0 {
		t.Error("paused requests must not be counted")
	}
}

func TestChatStreamsAndCounts(t *testing.T) {
	f := newFixture(5, 15*time.Second)
	res, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "hello", Character: "vampire"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.QueryCount != 1 || res.CharacterID != "vampire" {
		t.Errorf("result = %+v", res)
	}
	if got := drain(t, res); got != "Boo!" {
		t.Errorf("stream = %q", got)
	}
	if f.ledger.Total() != 1 {
		t.Errorf("ledger total = %d", f.ledger.Total())
	}
	if cmd := f.bridge.CurrentCommand(); cmd == nil || cmd.QueryCount != 1 {
		t.Errorf("bridge command = %+v", cmd)
	}
}

func TestCooldownFifthSucceedsSixthBlocked(t *testing.T) {
	f := newFixture(5, 15*time.Second)
	for i := 1; i <= 5; i++ {
		res, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "q"})
		if err != nil {
			t.Fatalf("query %d rejected: %v", i, err)
		}
		drain(t, res)
	}

	_, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "q"})
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("6th query err = %v, want RateLimitedError", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 15*time.Second {
		t.Errorf("RetryAfter = %v", rl.RetryAfter)
	}
	if f.backend.calls() != 5 {
		t.Errorf("backend calls = %d, want 5", f.backend.calls())
	}
	// A blocked attempt never advances the count toward the next window.
	if f.ledger.Total() != 5 {
		t.Errorf("ledger total = %d, want 5", f.ledger.Total())
	}

	// A different device is unaffected.
	if _, err := f.service.Chat(context.Background(), "dev_b", Request{Prompt: "q"}); err != nil {
		t.Errorf("other device rejected: %v", err)
	}
}

func TestUnknownCharacterFallsBack(t *testing.T) {
	f := newFixture(5, 15*time.Second)
	res, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "hi", Character: "mummy"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.CharacterID != characters.DefaultID {
		t.Errorf("character = %q, want default", res.CharacterID)
	}
}

func TestPromptFormat(t *testing.T) {
	f := newFixture(0, 0)
	f.cache.Append("dev_a", "vampire", contextcache.Exchange{Prompt: "first", Response: "one"})
	f.cache.Append("dev_a", "vampire", contextcache.Exchange{Prompt: "second", Response: "two"})

	res, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "third", Character: "vampire"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	drain(t, res)

	system := characters.NewRegistry().Resolve("vampire").System
	want := system + "\n\n" +
		"User: first\nAssistant: one\n" +
		"User: second\nAssistant: two\n" +
		"User: third\nAssistant:"
	if got := f.backend.lastRequest(t).Prompt; got != want {
		t.Errorf("prompt:\n%q\nwant:\n%q", got, want)
	}
}

func TestCharacterContextsIsolated(t *testing.T) {
	f := newFixture(0, 0)
	res, _ := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "witch secret", Character: "witch"})
	drain(t, res)

	res, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "hello", Character: "vampire"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	drain(t, res)

	if got := f.backend.lastRequest(t).Prompt; strings.Contains(got, "witch secret") {
		t.Errorf("vampire prompt leaked witch history:\n%s", got)
	}
}

func TestCompletedExchangeCached(t *testing.T) {
	f := newFixture(0, 0)
	res, _ := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "hello", Character: "ghost"})
	drain(t, res)

	got := f.cache.Recent("dev_a", "ghost")
	if len(got) != 1 || got[0].Prompt != "hello" || got[0].Response != "Boo!" {
		t.Errorf("cached context = %v", got)
	}
}

func TestFailedStreamStillCountedNotCached(t *testing.T) {
	f := newFixture(0, 0)
	f.backend.chunks = nil
	f.backend.err = errors.New("backend down")

	res, err := f.service.Chat(context.Background(), "dev_a", Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("acceptance should precede the backend call: %v", err)
	}

	var streamErr error
	for _, err := range res.Stream {
		if err != nil {
			streamErr = err
		}
	}
	if streamErr == nil {
		t.Fatal("expected stream error")
	}
	if f.ledger.Total() != 1 {
		t.Errorf("failed query should still count, total = %d", f.ledger.Total())
	}
	if got := f.cache.Recent("dev_a", characters.DefaultID); len(got) != 0 {
		t.Errorf("failed exchange must not be cached: %v", got)
	}
}

func TestSeedOnlyIntoEmptyContext(t *testing.T) {
	f := newFixture(0, 0)

	res, _ := f.service.Chat(context.Background(), "dev_a", Request{
		Prompt:          "new question",
		Character:       "ghost",
		CachedMessages:  []string{"earlier question"},
		CachedResponses: []string{"earlier answer"},
	})
	drain(t, res)

	if got := f.backend.lastRequest(t).Prompt; !strings.Contains(got, "User: earlier question\nAssistant: earlier answer") {
		t.Errorf("seeded history missing from prompt:\n%s", got)
	}

	// Once the server has its own history, client claims are ignored.
	res, _ = f.service.Chat(context.Background(), "dev_a", Request{
		Prompt:          "another",
		Character:       "ghost",
		CachedMessages:  []string{"forged"},
		CachedResponses: []string{"forged"},
	})
	drain(t, res)
	if got := f.backend.lastRequest(t).Prompt; strings.Contains(got, "forged") {
		t.Errorf("forged client history leaked into prompt:\n%s", got)
	}
}

func TestSeedMismatchedLengthsIgnored(t *testing.T) {
	f := newFixture(0, 0)
	res, _ := f.service.Chat(context.Background(), "dev_a", Request{
		Prompt:          "q",
		CachedMessages:  []string{"a", "b"},
		CachedResponses: []string{"only one"},
	})
	drain(t, res)
	if got := f.backend.lastRequest(t).Prompt; strings.Contains(got, "only one") {
		t.Errorf("mismatched seed should be ignored:\n%s", got)
	}
}
