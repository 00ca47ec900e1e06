// Package simulated provides a deterministic-seedable payment gateway for
// demo accounts and tests. It mimics a card processor: a configurable
// failure rate, optional artificial latency, and fake "pi_…" references.
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paperforge/ledger/payment"
)

// Compile-time interface check.
var _ payment.Gateway = (*Gateway)(nil)

// Gateway is a simulated payment processor.
type Gateway struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	latency     time.Duration

	refunds map[string]string // reference -> reason
	seq     int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSeed makes the gateway deterministic for tests.
func WithSeed(seed uint64) Option {
	return func(g *Gateway) {
		g.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithFailureRate sets the fraction of charges that are declined,
// in [0, 1]. 0 always succeeds; 1 always declines.
func WithFailureRate(rate float64) Option {
	return func(g *Gateway) {
		g.failureRate = rate
	}
}

// WithLatency adds an artificial delay to each gateway call.
func WithLatency(d time.Duration) Option {
	return func(g *Gateway) {
		g.latency = d
	}
}

// New creates a simulated gateway. The default failure rate is 5%,
// matching the behavior of a sandbox processor.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		failureRate: 0.05,
		refunds:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Charge implements payment.Gateway.
func (g *Gateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Outcome, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("simulated: non-positive charge amount %s", req.Amount)
	}

	if err := g.sleep(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() < g.failureRate {
		return &payment.Outcome{
			Success: false,
			Decline: "card declined",
		}, nil
	}

	g.seq++
	return &payment.Outcome{
		Success:   true,
		Reference: fmt.Sprintf("pi_sim_%012d", g.seq),
	}, nil
}

// Refund implements payment.Gateway. A reference may only be refunded once.
func (g *Gateway) Refund(ctx context.Context, reference, reason string) error {
	if err := g.sleep(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, done := g.refunds[reference]; done {
		return fmt.Errorf("simulated: reference %q already refunded", reference)
	}
	g.refunds[reference] = reason
	return nil
}

// Refunded reports whether a reference has been refunded, for test
// assertions.
func (g *Gateway) Refunded(reference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.refunds[reference]
	return ok
}

func (g *Gateway) sleep(ctx context.Context) error {
	if g.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(g.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
