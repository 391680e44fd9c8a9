package store

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGen hands out ULIDs that sort strictly by creation order, even when the
// wall clock stalls or steps back.
type IDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	lastMS  uint64
}

func NewIDGen(now func() time.Time) *IDGen {
	if now == nil {
		now = time.Now
	}
	return &IDGen{entropy: ulid.Monotonic(rand.Reader, 0), now: now}
}

// Next returns a new id and the millisecond timestamp encoded in it.
func (g *IDGen) Next() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	if ms < g.lastMS {
		ms = g.lastMS
	}
	for {
		id, err := ulid.New(ms, g.entropy)
		if err == nil {
			g.lastMS = ms
			return id.String(), ulid.Time(ms)
		}
		// entropy exhausted within this millisecond
		ms++
	}
}
