package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultDecayInterval is the tick period the exchange quotas are defined
// against. Tests override it through the counter/limiter options.
const DefaultDecayInterval = time.Second

// DefaultMaxAdmissionRetries bounds how many times WaitUntilAdmitted retries
// before giving up. Hitting this ceiling under normal load indicates a
// configuration problem, not congestion.
const DefaultMaxAdmissionRetries = 10

// ErrExcessiveRequests is returned when an admission wait exhausted its retry
// budget. Callers should treat this as fatal and review their request volume.
var ErrExcessiveRequests = errors.New("excessive concurrent requests: admission retry budget exhausted")

// DecayingCounter is a weighted counter that continuously decays over elapsed
// time. The decayed value is always recomputed from lastUpdate before an
// admission check, so an explicit Decay tick and on-read decay can coexist
// without double counting.
//
// All state is guarded by the counter's own mutex; nothing outside this type
// reads or writes value/lastUpdate.
type DecayingCounter struct {
	mu         sync.Mutex
	value      float64
	lastUpdate time.Time

	limit    float64
	rate     float64 // decay per interval
	interval time.Duration

	maxRetries int
	now        func() time.Time
}

// NewDecayingCounter creates a counter with the given limit and decay rate
// per interval.
func NewDecayingCounter(limit, ratePerInterval float64, interval time.Duration, now func() time.Time) *DecayingCounter {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = DefaultDecayInterval
	}

	return &DecayingCounter{
		lastUpdate: now(),
		limit:      limit,
		rate:       ratePerInterval,
		interval:   interval,
		maxRetries: DefaultMaxAdmissionRetries,
		now:        now,
	}
}

// decayedLocked computes the current value after decay without committing it.
// Callers must hold c.mu.
func (c *DecayingCounter) decayedLocked(now time.Time) float64 {
	elapsed := now.Sub(c.lastUpdate)
	if elapsed <= 0 {
		return c.value
	}

	intervals := float64(elapsed) / float64(c.interval)
	decayed := c.value - intervals*c.rate
	if decayed < 0 {
		return 0
	}
	return decayed
}

// TryAcquire charges weight to the counter if the limit allows it.
// On acceptance the decayed value plus weight is committed together with the
// acquisition time. On rejection the state is left untouched and the negative
// deficit is returned so the caller can size its backoff.
func (c *DecayingCounter) TryAcquire(weight float64, now time.Time) (bool, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	decayed := c.decayedLocked(now)
	deficit := c.limit - (decayed + weight)
	if deficit < 0 {
		return false, deficit
	}

	c.value = decayed + weight
	c.lastUpdate = now
	return true, deficit
}

// Decay commits the decayed value, flooring at zero. The background tick calls
// this once per interval.
func (c *DecayingCounter) Decay(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = c.decayedLocked(now)
	c.lastUpdate = now
}

// Value returns the current decayed value without committing it.
func (c *DecayingCounter) Value(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.decayedLocked(now)
}

// waitDuration converts a rejection deficit into the sleep needed for enough
// quota to decay away, plus one interval of slack.
func (c *DecayingCounter) waitDuration(deficit float64) time.Duration {
	if c.rate <= 0 {
		return c.interval
	}

	intervals := math.Ceil(-deficit/c.rate + 1)
	return time.Duration(intervals) * c.interval
}

// WaitUntilAdmitted blocks until the weight is admitted, sleeping between
// attempts for the computed decay duration. The sleep is interruptible by ctx
// so a limiter teardown cannot hang a caller. After maxRetries consecutive
// rejections it returns ErrExcessiveRequests.
func (c *DecayingCounter) WaitUntilAdmitted(ctx context.Context, weight float64) error {
	for attempt := 1; ; attempt++ {
		ok, deficit := c.TryAcquire(weight, c.now())
		if ok {
			return nil
		}

		// the final rejection returns immediately: sleeping once more cannot
		// change the outcome
		if attempt >= c.maxRetries {
			return errors.Wrapf(ErrExcessiveRequests, "weight %v over limit %v", weight, c.limit)
		}

		timer := time.NewTimer(c.waitDuration(deficit))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case <-timer.C:
		}
	}
}
