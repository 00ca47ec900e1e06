// Package ledger provides the entitlement and usage-accounting engine behind
// PaperForge's metered paper conversions.
//
// Ledger is designed as a library, not a service. Import it directly into your
// Go application and inject your own store, payment gateway, and conversion
// pipeline. It provides:
//
//   - Per-account entitlement decisions (free, paid, or denied) with a
//     short-lived monthly-count cache
//   - An append-only usage log recording every conversion attempt
//   - Per-account usage aggregates (monthly, lifetime, total spend)
//   - Pluggable payment gateway integration with a strict no-retry policy
//   - Loss-tolerant decision analytics with batched ingestion
//   - Lifecycle hooks via plugins (audit trail, metrics)
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/paperforge/ledger"
//	    "github.com/paperforge/ledger/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create ledger
//	l := ledger.New(store, ledger.WithGateway(gateway))
//
//	// Start the ledger (begins background workers)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Accounts carry a tier and a monthly conversion limit:
//
//	acc, err := l.GetOrCreateAccount(ctx, subject, email)
//
// Decisions answer whether the next conversion is free, requires payment,
// or is denied:
//
//	d, err := l.Evaluate(ctx, acc.ID)
//	if d.RequiresPayment {
//	    // d.AmountDue is $5.00
//	}
//
// ProcessConversion drives the whole flow, charging when required, recording
// the attempt, and invoking your pipeline:
//
//	receipt, err := l.ProcessConversion(ctx, acc.ID, paperRef, pipeline)
//
// # Free Tier
//
// Free accounts get one completed conversion per calendar month (UTC). After
// that, each conversion costs a flat $5.00; free accounts are never denied,
// only asked to pay. Pro accounts are unlimited; Team accounts have a hard
// monthly limit and are denied once it is reached.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest currency
// unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	att_01h2xcejqtf2nbrexx3vqjhp41   // Attempt ID
//	dec_01h455vb4pex5vsknk084sn02q   // Decision event ID
package ledger
