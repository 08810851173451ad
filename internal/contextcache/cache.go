// Package contextcache holds short rolling conversation windows per device
// and character.
//
// Each (device, character) pair owns an independent bounded window of
// prompt/response exchanges. When the window is full the oldest exchange is
// evicted. Windows expire wholesale after a period of inactivity so
// abandoned sessions do not accumulate.
package contextcache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Exchange is one completed prompt/response pair.
type Exchange struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Cache stores bounded conversation windows keyed by device and character.
type Cache struct {
	capacity int
	windows  *gocache.Cache
}

type window struct {
	mu        sync.Mutex
	exchanges []Exchange
}

// New creates a cache whose windows hold at most capacity exchanges and
// expire after ttl of inactivity.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		windows:  gocache.New(ttl, 10*time.Minute),
	}
}

func key(deviceID, characterID string) string {
	return deviceID + ":" + characterID
}

func (c *Cache) window(deviceID, characterID string) *window {
	k := key(deviceID, characterID)
	if v, ok := c.windows.Get(k); ok {
		return v.(*window)
	}
	w := &window{}
	// Another request may have raced us; keep whichever landed first.
	if err := c.windows.Add(k, w, gocache.DefaultExpiration); err != nil {
		if v, ok := c.windows.Get(k); ok {
			return v.(*window)
		}
	}
	return w
}

// Recent returns the window's exchanges oldest-first. The returned slice is
// a copy and safe to retain.
func (c *Cache) Recent(deviceID, characterID string) []Exchange {
	v, ok := c.windows.Get(key(deviceID, characterID))
	if !ok {
		return nil
	}
	w := v.(*window)
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Exchange, len(w.exchanges))
	copy(out, w.exchanges)
	return out
}

// Append records a completed exchange, evicting the oldest entry when the
// window is full. Appending also refreshes the window's expiry.
func (c *Cache) Append(deviceID, characterID string, ex Exchange) {
	w := c.window(deviceID, characterID)
	w.mu.Lock()
	w.exchanges = append(w.exchanges, ex)
	if len(w.exchanges) > c.capacity {
		w.exchanges = w.exchanges[len(w.exchanges)-c.capacity:]
	}
	w.mu.Unlock()
	c.windows.SetDefault(key(deviceID, characterID), w)
}

// Seed installs client-reported history into an empty window. A window that
// already holds server-observed exchanges is left untouched: the server's
// view wins over whatever the client claims.
func (c *Cache) Seed(deviceID, characterID string, history []Exchange) {
	if len(history) == 0 {
		return
	}
	w := c.window(deviceID, characterID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.exchanges) > 0 {
		return
	}
	if len(history) > c.capacity {
		history = history[len(history)-c.capacity:]
	}
	w.exchanges = append(w.exchanges, history...)
}

// Clear drops the window for a device and character.
func (c *Cache) Clear(deviceID, characterID string) {
	c.windows.Delete(key(deviceID, characterID))
}
