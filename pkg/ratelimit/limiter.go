package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lycheetrade/krakenx/pkg/metrics"
)

var log = logrus.WithField("component", "ratelimit")

// OrderLimitExceededError is the hard rejection for a placement that would
// exceed the tier's resting-order cap. Waiting cannot help here: the exchange
// would reject the order regardless, so the caller must cancel resting orders
// before retrying.
type OrderLimitExceededError struct {
	Symbol string
	Limit  int
}

func (e *OrderLimitExceededError) Error() string {
	return fmt.Sprintf("open order limit %d reached for %s, cancel resting orders before placing new ones", e.Limit, e.Symbol)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithDecayInterval overrides the decay tick period, mainly for tests.
func WithDecayInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.interval = d
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter enforces the exchange's three per-account quotas:
//
//   - common request traffic, continuously decaying, blocking on congestion;
//   - resting orders per symbol, released explicitly, failing fast at the cap;
//   - cancel weight per symbol, where the cost depends on the order's age,
//     blocking on congestion.
//
// A background tick decays the common and cancel counters once per interval.
// The tick takes the same per-counter mutexes as the admission paths, so no
// update is ever lost to an interleaving.
type Limiter struct {
	policy   Policy
	interval time.Duration
	now      func() time.Time

	common *DecayingCounter

	mu          sync.Mutex
	orderCounts map[string]int
	cancels     map[string]*DecayingCounter

	tickCancel context.CancelFunc
	tickDone   chan struct{}
	startOnce  sync.Once
	closeOnce  sync.Once
}

func NewLimiter(policy Policy, opts ...Option) *Limiter {
	l := &Limiter{
		policy:      policy,
		interval:    DefaultDecayInterval,
		now:         time.Now,
		orderCounts: make(map[string]int),
		cancels:     make(map[string]*DecayingCounter),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.common = NewDecayingCounter(policy.CommonLimit, policy.CommonDecayRate, l.interval, l.now)
	return l
}

// Policy returns the tier policy the limiter was built with.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Start launches the background decay tick. The tick stops when ctx is
// canceled or Close is called. Only the first call starts a tick, so Close
// always joins the goroutine it started.
func (l *Limiter) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		tickCtx, cancel := context.WithCancel(ctx)
		l.tickCancel = cancel
		l.tickDone = make(chan struct{})

		go l.tick(tickCtx)
	})
}

// Close stops the decay tick and waits for it to exit, so the tick can never
// fire after dependent resources are gone.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		if l.tickCancel != nil {
			l.tickCancel()
			<-l.tickDone
		}
	})
}

func (l *Limiter) tick(ctx context.Context) {
	defer close(l.tickDone)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := l.now()
			l.common.Decay(now)
			metrics.RateLimitCounterValueMetrics.WithLabelValues("common").Set(l.common.Value(now))

			l.mu.Lock()
			counters := make([]*DecayingCounter, 0, len(l.cancels))
			for _, c := range l.cancels {
				counters = append(counters, c)
			}
			l.mu.Unlock()

			for _, c := range counters {
				c.Decay(now)
			}
		}
	}
}

// AdmitRequest charges one unit of common request weight, blocking the caller
// until the quota allows it. Request throttling is soft backpressure: it
// resolves itself with the passage of time, so waiting is the right response.
func (l *Limiter) AdmitRequest(ctx context.Context) error {
	if ok, _ := l.common.TryAcquire(1, l.now()); ok {
		metrics.RateLimitAdmissionsMetrics.WithLabelValues("common").Inc()
		return nil
	}

	metrics.RateLimitBlockedMetrics.WithLabelValues("common").Inc()
	log.Debugf("common request limit reached, waiting for decay")

	if err := l.common.WaitUntilAdmitted(ctx, 1); err != nil {
		return err
	}

	metrics.RateLimitAdmissionsMetrics.WithLabelValues("common").Inc()
	return nil
}

// AdmitOrder claims one open-order slot for the symbol. At or over the tier
// cap it fails immediately with OrderLimitExceededError instead of waiting.
func (l *Limiter) AdmitOrder(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.orderCounts[symbol] >= l.policy.OrderLimit {
		metrics.RateLimitOrderCapRejectionsMetrics.WithLabelValues(symbol).Inc()
		return &OrderLimitExceededError{Symbol: symbol, Limit: l.policy.OrderLimit}
	}

	l.orderCounts[symbol]++
	metrics.RateLimitAdmissionsMetrics.WithLabelValues("order").Inc()
	return nil
}

// ReleaseOrder returns one open-order slot for the symbol, flooring at zero.
// Called exactly once when an order reaches a terminal state.
func (l *Limiter) ReleaseOrder(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.orderCounts[symbol] <= 1 {
		delete(l.orderCounts, symbol)
		return
	}
	l.orderCounts[symbol]--
}

// OpenOrderCount returns the number of claimed order slots for the symbol.
func (l *Limiter) OpenOrderCount(symbol string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.orderCounts[symbol]
}

// AdmitCancel charges the age-dependent cancel weight against the symbol's
// cancel counter, blocking like AdmitRequest on congestion.
func (l *Limiter) AdmitCancel(ctx context.Context, symbol string, orderAge time.Duration) error {
	weight := CancelWeight(orderAge)
	if weight == 0 {
		return nil
	}

	counter := l.cancelCounter(symbol)
	if ok, _ := counter.TryAcquire(weight, l.now()); ok {
		metrics.RateLimitAdmissionsMetrics.WithLabelValues("cancel").Inc()
		return nil
	}

	metrics.RateLimitBlockedMetrics.WithLabelValues("cancel").Inc()
	log.Debugf("cancel weight limit reached for %s, waiting for decay", symbol)

	if err := counter.WaitUntilAdmitted(ctx, weight); err != nil {
		return err
	}

	metrics.RateLimitAdmissionsMetrics.WithLabelValues("cancel").Inc()
	return nil
}

// CancelCounterValue returns the decayed cancel weight for the symbol.
func (l *Limiter) CancelCounterValue(symbol string) float64 {
	return l.cancelCounter(symbol).Value(l.now())
}

// CommonCounterValue returns the decayed common request weight.
func (l *Limiter) CommonCounterValue() float64 {
	return l.common.Value(l.now())
}

func (l *Limiter) cancelCounter(symbol string) *DecayingCounter {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.cancels[symbol]
	if !ok {
		counter = NewDecayingCounter(l.policy.CancelLimit, l.policy.CancelDecayRate, l.interval, l.now)
		l.cancels[symbol] = counter
	}
	return counter
}
