package envelope

import (
	"sync"
	"time"

	"github.com/tokenledger/chain/pkg/codeerr"
)

// ReplayGuard tracks seen (from, nonce) pairs within the replay window.
// The spec requires two independent instances — one for the mempool path
// (check-tx) and one for the committed path (deliver-tx) — so this type
// carries no global state; callers own an instance per pipeline.
type ReplayGuard struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	timeout time.Duration
}

// NewReplayGuard creates a guard with the given timeout (use DefaultTimeout
// unless the caller has a specific reason to deviate).
func NewReplayGuard(timeout time.Duration) *ReplayGuard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReplayGuard{seen: make(map[string]time.Time), timeout: timeout}
}

func replayKey(from, nonce []byte) string {
	return string(from) + "\x00" + string(nonce)
}

// Check validates the timestamp window and replay uniqueness of req as of
// now, recording it as seen on success. An envelope with no nonce is never
// recorded (and so is never considered a duplicate) — callers that require
// replay protection on a given endpoint must require a nonce there.
func (g *ReplayGuard) Check(req Request, now time.Time) error {
	delta := now.Sub(req.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta > g.timeout {
		return codeerr.TimestampOutOfRange()
	}
	if len(req.Nonce) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.purgeLocked(now)

	key := replayKey(req.From.Raw(), req.Nonce)
	if _, dup := g.seen[key]; dup {
		return codeerr.DuplicateMessage()
	}
	g.seen[key] = req.Timestamp
	return nil
}

// purgeLocked drops entries older than the replay timeout. Callers must
// hold g.mu.
func (g *ReplayGuard) purgeLocked(now time.Time) {
	for k, t := range g.seen {
		if now.Sub(t) > g.timeout {
			delete(g.seen, k)
		}
	}
}

// Size reports the number of currently tracked entries, useful for metrics.
func (g *ReplayGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
