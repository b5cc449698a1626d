package feed

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// gate holds a feed back after failures. The scheduler keeps ticking at the
// feed's cadence; a closed gate turns those ticks into no-ops until the
// backoff delay has passed.
type gate struct {
	mu       sync.Mutex
	policy   *backoff.ExponentialBackOff
	resumeAt time.Time
}

func newGate(initial, max time.Duration) *gate {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	if max > initial {
		b.MaxInterval = max
	} else {
		b.MaxInterval = initial
	}
	b.Reset()
	return &gate{policy: b}
}

func (g *gate) open(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !now.Before(g.resumeAt)
}

// fail closes the gate for the next backoff delay and returns it.
func (g *gate) fail(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.policy.NextBackOff()
	g.resumeAt = now.Add(d)
	return d
}

func (g *gate) succeed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy.Reset()
	g.resumeAt = time.Time{}
}
