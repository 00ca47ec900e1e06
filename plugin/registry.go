package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onAccountCreated    []OnAccountCreated
	onTierChanged       []OnTierChanged
	onDecisionEvaluated []OnDecisionEvaluated
	onLimitExceeded     []OnLimitExceeded
	onFreeGranted       []OnFreeGranted
	onAttemptRecorded   []OnAttemptRecorded
	onDecisionsFlushed  []OnDecisionsFlushed
	onPaymentCharged    []OnPaymentCharged
	onPaymentFailed     []OnPaymentFailed
	onRefundIssued      []OnRefundIssued
	gateways            []GatewayPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnTierChanged); ok {
		r.onTierChanged = append(r.onTierChanged, v)
	}
	if v, ok := p.(OnDecisionEvaluated); ok {
		r.onDecisionEvaluated = append(r.onDecisionEvaluated, v)
	}
	if v, ok := p.(OnLimitExceeded); ok {
		r.onLimitExceeded = append(r.onLimitExceeded, v)
	}
	if v, ok := p.(OnFreeGranted); ok {
		r.onFreeGranted = append(r.onFreeGranted, v)
	}
	if v, ok := p.(OnAttemptRecorded); ok {
		r.onAttemptRecorded = append(r.onAttemptRecorded, v)
	}
	if v, ok := p.(OnDecisionsFlushed); ok {
		r.onDecisionsFlushed = append(r.onDecisionsFlushed, v)
	}
	if v, ok := p.(OnPaymentCharged); ok {
		r.onPaymentCharged = append(r.onPaymentCharged, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnRefundIssued); ok {
		r.onRefundIssued = append(r.onRefundIssued, v)
	}
	if v, ok := p.(GatewayPlugin); ok {
		r.gateways = append(r.gateways, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	checkInterface(reflect.TypeOf((*OnDecisionEvaluated)(nil)).Elem(), "OnDecisionEvaluated")
	checkInterface(reflect.TypeOf((*OnAttemptRecorded)(nil)).Elem(), "OnAttemptRecorded")
	checkInterface(reflect.TypeOf((*OnPaymentCharged)(nil)).Elem(), "OnPaymentCharged")
	checkInterface(reflect.TypeOf((*OnPaymentFailed)(nil)).Elem(), "OnPaymentFailed")
	checkInterface(reflect.TypeOf((*OnRefundIssued)(nil)).Elem(), "OnRefundIssued")
	checkInterface(reflect.TypeOf((*GatewayPlugin)(nil)).Elem(), "GatewayPlugin")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, acc interface{}) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountCreated(ctx, acc)
		}); err != nil {
			r.logger.Warn("plugin OnAccountCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTierChanged emits a tier changed event.
func (r *Registry) EmitTierChanged(ctx context.Context, acc interface{}, oldTier, newTier string) {
	r.mu.RLock()
	plugins := r.onTierChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTierChanged(ctx, acc, oldTier, newTier)
		}); err != nil {
			r.logger.Warn("plugin OnTierChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDecisionEvaluated emits a decision evaluated event.
func (r *Registry) EmitDecisionEvaluated(ctx context.Context, accountID string, decision interface{}) {
	r.mu.RLock()
	plugins := r.onDecisionEvaluated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDecisionEvaluated(ctx, accountID, decision)
		}); err != nil {
			r.logger.Warn("plugin OnDecisionEvaluated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLimitExceeded emits a limit exceeded event.
func (r *Registry) EmitLimitExceeded(ctx context.Context, accountID string, used, limit int64) {
	r.mu.RLock()
	plugins := r.onLimitExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLimitExceeded(ctx, accountID, used, limit)
		}); err != nil {
			r.logger.Warn("plugin OnLimitExceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitFreeGranted emits a free conversion granted event.
func (r *Registry) EmitFreeGranted(ctx context.Context, accountID string) {
	r.mu.RLock()
	plugins := r.onFreeGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnFreeGranted(ctx, accountID)
		}); err != nil {
			r.logger.Warn("plugin OnFreeGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAttemptRecorded emits an attempt recorded event.
func (r *Registry) EmitAttemptRecorded(ctx context.Context, attempt interface{}) {
	r.mu.RLock()
	plugins := r.onAttemptRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAttemptRecorded(ctx, attempt)
		}); err != nil {
			r.logger.Warn("plugin OnAttemptRecorded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDecisionsFlushed emits a decisions flushed event.
func (r *Registry) EmitDecisionsFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onDecisionsFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDecisionsFlushed(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnDecisionsFlushed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentCharged emits a payment charged event.
func (r *Registry) EmitPaymentCharged(ctx context.Context, accountID, reference string, amount interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentCharged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentCharged(ctx, accountID, reference, amount)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentCharged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, accountID string, amount interface{}, decline string) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentFailed(ctx, accountID, amount, decline)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRefundIssued emits a refund issued event.
func (r *Registry) EmitRefundIssued(ctx context.Context, accountID, reference, reason string) {
	r.mu.RLock()
	plugins := r.onRefundIssued
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundIssued(ctx, accountID, reference, reason)
		}); err != nil {
			r.logger.Warn("plugin OnRefundIssued failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetGateways returns all registered gateway plugins.
func (r *Registry) GetGateways() []GatewayPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]GatewayPlugin, len(r.gateways))
	copy(result, r.gateways)
	return result
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the entitlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
