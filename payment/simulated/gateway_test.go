package simulated

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/paperforge/ledger/payment"
	"github.com/paperforge/ledger/types"
)

func TestChargeAlwaysSucceeds(t *testing.T) {
	g := New(WithFailureRate(0))

	for i := 0; i < 20; i++ {
		out, err := g.Charge(context.Background(), payment.ChargeRequest{Amount: types.USD(500)})
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if !out.Success {
			t.Fatalf("expected success, got decline %q", out.Decline)
		}
		if !strings.HasPrefix(out.Reference, "pi_sim_") {
			t.Errorf("unexpected reference %q", out.Reference)
		}
	}
}

func TestChargeAlwaysDeclines(t *testing.T) {
	g := New(WithFailureRate(1))

	out, err := g.Charge(context.Background(), payment.ChargeRequest{Amount: types.USD(500)})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if out.Success {
		t.Fatal("expected decline")
	}
	if out.Reference != "" {
		t.Errorf("declined charge must not carry a reference, got %q", out.Reference)
	}
	if out.Decline == "" {
		t.Error("declined charge must carry a reason")
	}
}

func TestChargeRejectsNonPositiveAmount(t *testing.T) {
	g := New(WithFailureRate(0))

	for _, amount := range []types.Money{types.USD(0), types.USD(-500)} {
		if _, err := g.Charge(context.Background(), payment.ChargeRequest{Amount: amount}); err == nil {
			t.Errorf("expected error for amount %v", amount)
		}
	}
}

func TestChargeDeterministicWithSeed(t *testing.T) {
	run := func() []bool {
		g := New(WithSeed(42), WithFailureRate(0.5))
		outcomes := make([]bool, 50)
		for i := range outcomes {
			out, err := g.Charge(context.Background(), payment.ChargeRequest{Amount: types.USD(500)})
			if err != nil {
				t.Fatalf("charge: %v", err)
			}
			outcomes[i] = out.Success
		}
		return outcomes
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("seeded gateway not deterministic at charge %d", i)
		}
	}
}

func TestRefundOnce(t *testing.T) {
	g := New(WithFailureRate(0))

	out, err := g.Charge(context.Background(), payment.ChargeRequest{Amount: types.USD(500)})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	if err := g.Refund(context.Background(), out.Reference, "user request"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !g.Refunded(out.Reference) {
		t.Error("reference should be recorded as refunded")
	}

	// Second refund of the same reference must fail.
	if err := g.Refund(context.Background(), out.Reference, "again"); err == nil {
		t.Error("expected error on double refund")
	}
}

func TestChargeHonorsContext(t *testing.T) {
	g := New(WithFailureRate(0), WithLatency(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Charge(ctx, payment.ChargeRequest{Amount: types.USD(500)}); err == nil {
		t.Fatal("expected context error")
	}
}
