// Package led turns query activity into commands for the prop controller.
//
// The physical side is a BLE poller that asks the server what the LEDs
// should do and forwards the command string to an ESP32. The firmware
// parses these strings literally, so the formats here are wire formats and
// must not change shape.
package led

import (
	"fmt"
	"sync"
	"time"

	"github.com/spookylabs/spookygpt/internal/domain"
)

// Signal modes.
const (
	// ModeAlways issues a signal for every observed query.
	ModeAlways = "always"
	// ModeThreshold issues a signal only when the observed total rises
	// above the bridge's own last-seen value.
	ModeThreshold = "threshold"
)

// Command string builders. The firmware's parser is a literal prefix match,
// so each builder produces the exact bytes it expects.

// ColorCommand flashes an RGB color, optionally for a bounded duration.
func ColorCommand(r, g, b uint8, duration time.Duration) string {
	if duration <= 0 {
		return fmt.Sprintf("LED_COLOR:%d,%d,%d", r, g, b)
	}
	return fmt.Sprintf("LED_COLOR:%d,%d,%d:%d", r, g, b, duration.Milliseconds())
}

// OnCommand turns the LEDs on for the given duration.
func OnCommand(duration time.Duration) string {
	return fmt.Sprintf("LED_ON:%d", duration.Milliseconds())
}

// OffCommand turns the LEDs off.
func OffCommand() string {
	return "LED_OFF"
}

// PartyCommand starts the firmware's party effect.
func PartyCommand() string {
	return "LED_PARTY"
}

// AnimateCommand starts a pulsing animation in the given color.
func AnimateCommand(r, g, b uint8) string {
	return fmt.Sprintf("LED_ANIMATE:%d,%d,%d", r, g, b)
}

// Bridge converts query-count observations into LED commands. It retains at
// most one current command; a new command overwrites the previous one.
type Bridge struct {
	mu      sync.Mutex
	mode    string
	signal  string
	current *domain.LedCommand

	// lastSeen is the bridge's own baseline, tracked separately from the
	// ledger's raw counter so polling clients with their own baselines
	// cannot cause duplicate or missed triggers.
	lastSeen int64
	seeded   bool

	now func() time.Time
}

// New creates a bridge in the given mode. The signal string is the command
// issued for each qualifying event.
func New(mode, signal string) *Bridge {
	return &Bridge{
		mode:   mode,
		signal: signal,
		now:    time.Now,
	}
}

// Observe notifies the bridge that an accepted query brought the ledger to
// the given total. Always mode issues a signal for every call. Threshold
// mode issues only when the total rises above the baseline, and the first
// observation after startup seeds the baseline without firing.
func (b *Bridge) Observe(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.mode {
	case ModeAlways:
		b.issueLocked(total)
		b.lastSeen = total
		b.seeded = true
	default:
		if !b.seeded {
			b.lastSeen = total
			b.seeded = true
			return
		}
		if total > b.lastSeen {
			b.issueLocked(total)
			b.lastSeen = total
		}
	}
}

func (b *Bridge) issueLocked(total int64) {
	b.current = &domain.LedCommand{
		Action:     b.signal,
		IssuedAt:   b.now(),
		QueryCount: total,
	}
}

// Issue installs an explicit command, overwriting whatever is current.
// Used by the admin surface for manual control.
func (b *Bridge) Issue(action string, total int64) domain.LedCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = &domain.LedCommand{
		Action:     action,
		IssuedAt:   b.now(),
		QueryCount: total,
	}
	return *b.current
}

// CurrentCommand returns the most recent command, or nil if none has been
// issued since startup.
func (b *Bridge) CurrentCommand() *domain.LedCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	cmd := *b.current
	return &cmd
}
