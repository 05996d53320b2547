package trading

import "time"

// Cooldown remembers the last order time per ticker. Entries are never
// expired in the background; Active compares elapsed time lazily.
type Cooldown struct {
	window time.Duration
	last   map[string]time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: make(map[string]time.Time)}
}

func (c *Cooldown) SetWindow(window time.Duration) { c.window = window }

func (c *Cooldown) Set(ticker string, at time.Time) { c.last[ticker] = at }

// Active reports whether ticker had an order less than window ago.
func (c *Cooldown) Active(ticker string, now time.Time) bool {
	at, ok := c.last[ticker]
	return ok && now.Sub(at) < c.window
}

// Clear forgets every entry.
func (c *Cooldown) Clear() { clear(c.last) }

func (c *Cooldown) snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}
