package ledger_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/paperforge/ledger"
	"github.com/paperforge/ledger/payment/simulated"
	"github.com/paperforge/ledger/store/memory"
	"github.com/paperforge/ledger/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize Ledger with a payment gateway
		l := ledger.New(store,
			ledger.WithLogger(slog.Default()),
			ledger.WithGateway(simulated.New(simulated.WithFailureRate(0))),
			ledger.WithAnalyticsConfig(100, 5*time.Second),
			ledger.WithCountCacheTTL(30*time.Second),
		)

		// Start the engine
		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		// Provision an account from the auth subject
		acc, err := l.GetOrCreateAccount(ctx, "auth0|user_123", "reader@example.com")
		if err != nil {
			t.Fatal(err)
		}

		// Check entitlement for the next conversion
		d, err := l.Evaluate(ctx, acc.ID)
		if err != nil {
			t.Fatal(err)
		}

		if d.CanProceed {
			if d.RequiresPayment {
				log.Printf("conversion costs %s\n", d.AmountDue.String())
			}

			// Run the whole flow: charge if required, record, convert
			receipt, err := l.ProcessConversion(ctx, acc.ID, "arxiv:2401.12345",
				ledger.PipelineFunc(func(context.Context, string) error {
					// real pipeline goes here
					return nil
				}),
			)
			if err != nil {
				t.Fatal(err)
			}
			log.Printf("recorded attempt %s\n", receipt.Attempt.ID.String())
		} else {
			log.Printf("conversion denied: %s\n", d.Reason)
		}

		// Aggregate usage for the account page
		stats, err := l.GetUsageStats(ctx, acc.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("completed this month: %d, spent: %s\n",
			stats.MonthlyCompleted, stats.TotalSpent.String())
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(500)    // $5.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}
