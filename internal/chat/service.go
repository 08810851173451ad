// Package chat orchestrates one chat request end to end: gating, prompt
// assembly, the model call, and the bookkeeping around it.
package chat

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/spookylabs/spookygpt/internal/characters"
	"github.com/spookylabs/spookygpt/internal/contextcache"
	"github.com/spookylabs/spookygpt/internal/cooldown"
	"github.com/spookylabs/spookygpt/internal/led"
	"github.com/spookylabs/spookygpt/internal/ledger"
	"github.com/spookylabs/spookygpt/internal/llm"
)

// Request is one chat call. CachedMessages and CachedResponses are the
// browser's own rolling history, accepted only to warm a context window the
// server has not seen yet.
type Request struct {
	Prompt          string   `json:"prompt"`
	Character       string   `json:"character,omitempty"`
	CachedMessages  []string `json:"cachedMessages,omitempty"`
	CachedResponses []string `json:"cachedResponses,omitempty"`
}

// Result is an accepted chat call: the device's updated query count and the
// response stream. The stream must be fully consumed or abandoned via
// context cancellation.
type Result struct {
	QueryCount  int
	CharacterID string
	Stream      iter.Seq2[string, error]
}

// Service wires the gates, the ledger, and the model backend together.
type Service struct {
	registry *characters.Registry
	contexts *contextcache.Cache
	gate     *cooldown.Gate
	ledger   *ledger.Ledger
	bridge   *led.Bridge
	backend  llm.Streamer
	paused   *atomic.Bool
	logger   *slog.Logger
}

// NewService creates the chat service. The paused flag is shared with the
// admin surface, which toggles it.
func NewService(
	registry *characters.Registry,
	contexts *contextcache.Cache,
	gate *cooldown.Gate,
	ldg *ledger.Ledger,
	bridge *led.Bridge,
	backend llm.Streamer,
	paused *atomic.Bool,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry: registry,
		contexts: contexts,
		gate:     gate,
		ledger:   ldg,
		bridge:   bridge,
		backend:  backend,
		paused:   paused,
		logger:   logger,
	}
}

// Paused reports whether the service is currently suspended.
func (s *Service) Paused() bool {
	return s.paused.Load()
}

// Chat validates and gates one request, records it, and returns the
// response stream. Gating rejections happen before any backend work: the
// query is counted only once it has passed every gate, and the count
// includes the request that triggers a cooldown.
func (s *Service) Chat(ctx context.Context, deviceID string, req Request) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrInvalidInput
	}
	if s.paused.Load() {
		return nil, ErrPaused
	}
	if blocked, remaining := s.gate.Blocked(deviceID); blocked {
		return nil, &RateLimitedError{RetryAfter: remaining}
	}

	character := s.registry.Resolve(req.Character)

	s.seedContext(deviceID, character.ID, req)
	history := s.contexts.Recent(deviceID, character.ID)
	fullPrompt := buildPrompt(character.System, history, prompt)

	// Accepted: count before the backend call so a failed stream still
	// counts, and drive the LED from the new total.
	count := s.gate.Record(deviceID)
	total := s.ledger.Record(character.ID, prompt)
	s.bridge.Observe(total)

	s.logger.Info("chat accepted",
		"device_id", deviceID,
		"character", character.ID,
		"query_count", count,
		"total_queries", total,
	)

	return &Result{
		QueryCount:  count,
		CharacterID: character.ID,
		Stream:      s.stream(ctx, deviceID, character, prompt, fullPrompt),
	}, nil
}

// stream runs the backend call, forwarding chunks and caching the completed
// exchange only when the stream finishes cleanly.
func (s *Service) stream(ctx context.Context, deviceID string, character *characters.Character, userPrompt, fullPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var response strings.Builder
		for chunk, err := range s.backend.Generate(ctx, llm.GenerateRequest{
			Prompt:      fullPrompt,
			Temperature: character.Temperature,
			MaxTokens:   character.MaxTokens,
		}) {
			if err != nil {
				s.logger.Error("model stream failed",
					"device_id", deviceID,
					"character", character.ID,
					"error", err,
				)
				yield("", err)
				return
			}
			response.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}

		if response.Len() > 0 {
			s.contexts.Append(deviceID, character.ID, contextcache.Exchange{
				Prompt:   userPrompt,
				Response: response.String(),
			})
		}
	}
}

// seedContext installs client-reported history when the server has none.
// The two slices are pairwise aligned; a length mismatch is ignored rather
// than guessed at.
func (s *Service) seedContext(deviceID, characterID string, req Request) {
	if len(req.CachedMessages) == 0 || len(req.CachedMessages) != len(req.CachedResponses) {
		return
	}
	history := make([]contextcache.Exchange, 0, len(req.CachedMessages))
	for i := range req.CachedMessages {
		m := strings.TrimSpace(req.CachedMessages[i])
		r := strings.TrimSpace(req.CachedResponses[i])
		if m == "" || r == "" {
			continue
		}
		history = append(history, contextcache.Exchange{Prompt: m, Response: r})
	}
	s.contexts.Seed(deviceID, characterID, history)
}

// buildPrompt assembles the full model prompt: the system prompt, the
// retained exchanges oldest first, then the new user turn.
func buildPrompt(system string, history []contextcache.Exchange, prompt string) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	for _, ex := range history {
		b.WriteString("User: ")
		b.WriteString(ex.Prompt)
		b.WriteString("\nAssistant: ")
		b.WriteString(ex.Response)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(prompt)
	b.WriteString("\nAssistant:")
	return b.String()
}
