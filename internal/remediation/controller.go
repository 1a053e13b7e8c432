// Package remediation drives the per-(resource, policy) lifecycle:
// first-seen, warned, remediated. Transitions are persisted before they
// are acknowledged, so a restart resumes in-flight grace periods.
package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/catherinevee/policyguard/internal/events"
	"github.com/catherinevee/policyguard/internal/logger"
	"github.com/catherinevee/policyguard/internal/monitoring"
	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/internal/providers"
	"github.com/catherinevee/policyguard/internal/resilience"
	"github.com/catherinevee/policyguard/internal/state"
	"github.com/catherinevee/policyguard/pkg/models"
)

// warningSent is the only warning kind currently emitted; the record
// keeps a set so more kinds can be added without a schema change.
const warningSent = "warning_sent"

// Warner is the side-channel notified before a timed remediation fires.
type Warner interface {
	Warn(resource models.Resource, pol policy.PolicyDefinition)
}

// Controller applies the remediation state machine.
type Controller struct {
	provider providers.CloudProvider
	store    state.Store
	bus      *events.Bus
	metrics  *monitoring.Recorder
	warner   Warner
	retry    *resilience.RetryConfig
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithWarner replaces the default log-based warning side-channel.
func WithWarner(w Warner) Option {
	return func(c *Controller) { c.warner = w }
}

// WithRetryConfig replaces the remediation retry envelope.
func WithRetryConfig(cfg *resilience.RetryConfig) Option {
	return func(c *Controller) { c.retry = cfg }
}

// WithClock replaces the wall clock. Tests use it to step through grace
// periods.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller.
func NewController(provider providers.CloudProvider, store state.Store, bus *events.Bus, metrics *monitoring.Recorder, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		store:    store,
		bus:      bus,
		metrics:  metrics,
		retry:    resilience.RemediationRetryConfig(),
		log:      logger.New("remediation"),
		now:      time.Now,
	}
	c.warner = &logWarner{log: c.log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleViolation advances the state machine for one violating resource.
// A state-store write failure aborts the transition and surfaces to the
// policy loop.
func (c *Controller) HandleViolation(ctx context.Context, resource models.Resource, pol policy.PolicyDefinition) error {
	if !pol.Timed() {
		return c.remediateImmediate(ctx, resource, pol)
	}
	return c.handleTimed(ctx, resource, pol)
}

func (c *Controller) handleTimed(ctx context.Context, resource models.Resource, pol policy.PolicyDefinition) error {
	key := resource.Key()
	now := c.now().UTC()
	timing := pol.RemediationAction.Timing

	rec, ok := c.store.Get(key)
	if !ok {
		// First observed violation: register it and wait out the grace
		// period. This tick does not remediate.
		rec = state.Record{
			PolicyID:       pol.ID,
			FirstViolation: now,
			WarningsSent:   []string{},
		}
		if err := c.store.Put(key, rec); err != nil {
			return fmt.Errorf("failed to persist violation for %s: %w", key, err)
		}

		c.bus.Publish(events.Event{
			Type:       events.PolicyViolationDetected,
			ResourceID: resource.ID,
			PolicyID:   pol.ID,
			Data: map[string]interface{}{
				"first_violation": rec.FirstViolation.Format(time.RFC3339),
				"delay":           timing.Delay.String(),
			},
		})
		c.metrics.Record(monitoring.Metric{
			PolicyID:   pol.ID,
			ResourceID: resource.ID,
			Action:     monitoring.ActionViolationDetected,
			Status:     monitoring.StatusPending,
		})
		return nil
	}

	// A backward wall-clock jump must not trigger early transitions.
	elapsed := now.Sub(rec.FirstViolation)
	if elapsed < 0 {
		elapsed = 0
	}

	if wt := timing.WarningThreshold; wt != nil && elapsed >= wt.Duration && !rec.HasWarning(warningSent) {
		rec.WarningsSent = append(rec.WarningsSent, warningSent)
		if err := c.store.Put(key, rec); err != nil {
			return fmt.Errorf("failed to persist warning for %s: %w", key, err)
		}

		c.bus.Publish(events.Event{
			Type:       events.PolicyViolationWarning,
			ResourceID: resource.ID,
			PolicyID:   pol.ID,
			Data: map[string]interface{}{
				"first_violation": rec.FirstViolation.Format(time.RFC3339),
				"remediation_at":  rec.FirstViolation.Add(timing.Delay.Duration).Format(time.RFC3339),
			},
		})
		c.warner.Warn(resource, pol)
		c.metrics.Record(monitoring.Metric{
			PolicyID:   pol.ID,
			ResourceID: resource.ID,
			Action:     monitoring.ActionViolationWarning,
			Status:     monitoring.StatusWarning,
		})
	}

	if elapsed < timing.Delay.Duration {
		return nil
	}

	c.bus.Publish(events.Event{
		Type:       events.PolicyRemediation,
		ResourceID: resource.ID,
		PolicyID:   pol.ID,
		Data: map[string]interface{}{
			"action": string(pol.RemediationAction.Type),
		},
	})

	start := c.now()
	if err := c.apply(ctx, resource, pol); err != nil {
		c.metrics.Record(monitoring.Metric{
			PolicyID:   pol.ID,
			ResourceID: resource.ID,
			Action:     monitoring.ActionRemediation,
			Status:     monitoring.StatusFailed,
			Duration:   c.now().Sub(start).Seconds(),
		})
		// The record stays so grace tracking survives; the next tick at
		// or after the delay retries.
		return fmt.Errorf("remediation of %s under policy %s failed: %w", resource.ID, pol.ID, err)
	}

	if err := c.store.Delete(key); err != nil {
		return fmt.Errorf("failed to clear record for %s: %w", key, err)
	}
	c.metrics.Record(monitoring.Metric{
		PolicyID:   pol.ID,
		ResourceID: resource.ID,
		Action:     monitoring.ActionRemediation,
		Status:     monitoring.StatusSuccess,
		Duration:   c.now().Sub(start).Seconds(),
	})
	return nil
}

func (c *Controller) remediateImmediate(ctx context.Context, resource models.Resource, pol policy.PolicyDefinition) error {
	c.bus.Publish(events.Event{
		Type:       events.ImmediateRemediation,
		ResourceID: resource.ID,
		PolicyID:   pol.ID,
		Data: map[string]interface{}{
			"action": string(pol.RemediationAction.Type),
		},
	})

	start := c.now()
	if err := c.apply(ctx, resource, pol); err != nil {
		c.metrics.Record(monitoring.Metric{
			PolicyID:   pol.ID,
			ResourceID: resource.ID,
			Action:     monitoring.ActionImmediateRemediation,
			Status:     monitoring.StatusFailed,
			Duration:   c.now().Sub(start).Seconds(),
		})
		return fmt.Errorf("immediate remediation of %s under policy %s failed: %w", resource.ID, pol.ID, err)
	}

	c.metrics.Record(monitoring.Metric{
		PolicyID:   pol.ID,
		ResourceID: resource.ID,
		Action:     monitoring.ActionImmediateRemediation,
		Status:     monitoring.StatusSuccess,
		Duration:   c.now().Sub(start).Seconds(),
	})
	return nil
}

// apply invokes the provider under the retry envelope. Exhaustion emits
// RemediationError through the event sink.
func (c *Controller) apply(ctx context.Context, resource models.Resource, pol policy.PolicyDefinition) error {
	err := resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.provider.Apply(ctx, resource, pol.RemediationAction)
	})
	if err == nil {
		return nil
	}

	c.log.Error("Remediation failed",
		logger.String("resource_id", resource.ID),
		logger.String("policy_id", pol.ID),
		logger.Error(err))
	c.bus.Publish(events.Event{
		Type:       events.RemediationError,
		ResourceID: resource.ID,
		PolicyID:   pol.ID,
		Data: map[string]interface{}{
			"action": string(pol.RemediationAction.Type),
			"error":  err.Error(),
		},
	})
	return err
}

// Sweep garbage-collects records left by resources that no longer violate
// the policy: anything keyed to this policy but absent from the tick's
// violator set. A swept resource that violates again starts a new streak.
func (c *Controller) Sweep(pol policy.PolicyDefinition, violating map[string]struct{}) error {
	removed, err := c.store.DeleteWhere(func(key string, rec state.Record) bool {
		if rec.PolicyID != pol.ID {
			return false
		}
		_, still := violating[key]
		return !still
	})
	if err != nil {
		return fmt.Errorf("failed to sweep stale records for policy %s: %w", pol.ID, err)
	}
	if removed > 0 {
		c.log.Info("Swept stale remediation records",
			logger.String("policy_id", pol.ID),
			logger.Int("removed", removed))
	}
	return nil
}

type logWarner struct {
	log logger.Logger
}

func (w *logWarner) Warn(resource models.Resource, pol policy.PolicyDefinition) {
	w.log.Warn("Resource will be remediated soon",
		logger.String("resource_id", resource.ID),
		logger.String("policy_id", pol.ID))
}
