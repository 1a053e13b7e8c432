// Package daemon runs the per-policy scheduler: one goroutine per
// policy, each evaluating on its own cadence until the daemon stops.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catherinevee/policyguard/internal/logger"
	"github.com/catherinevee/policyguard/internal/policy"
)

// recoveryDelay is how long a policy loop backs off after a failed
// tick before resuming its normal cadence.
const recoveryDelay = 60 * time.Second

// Evaluator runs one evaluation tick for a policy. Satisfied by
// engine.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, pol policy.PolicyDefinition) error
}

// FailureCounter counts failed evaluation ticks. Satisfied by
// monitoring.Recorder.
type FailureCounter interface {
	EvaluationFailed(policyID string)
}

// Daemon owns the policy loops.
type Daemon struct {
	evaluator Evaluator
	policies  []policy.PolicyDefinition
	failures  FailureCounter
	log       logger.Logger

	recovery time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithRecoveryDelay overrides the post-failure backoff.
func WithRecoveryDelay(d time.Duration) Option {
	return func(dm *Daemon) { dm.recovery = d }
}

// New creates a daemon for the given policies.
func New(evaluator Evaluator, policies []policy.PolicyDefinition, failures FailureCounter, opts ...Option) *Daemon {
	d := &Daemon{
		evaluator: evaluator,
		policies:  policies,
		failures:  failures,
		log:       logger.New("daemon"),
		recovery:  recoveryDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches one loop per policy. It returns once all loops are
// running; the loops stop when ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}
	if len(d.policies) == 0 {
		return fmt.Errorf("no policies to run")
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.running = true

	for _, pol := range d.policies {
		d.wg.Add(1)
		go d.runPolicy(ctx, pol)
	}

	d.log.Info("Daemon started", logger.Int("policies", len(d.policies)))
	return nil
}

// Stop cancels the loops and waits for them to drain.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.log.Info("Daemon stopped")
}

// runPolicy evaluates immediately, then on the policy's cadence. A
// failed tick is logged and counted, and the loop backs off before
// resuming so a broken provider is not hammered.
func (d *Daemon) runPolicy(ctx context.Context, pol policy.PolicyDefinition) {
	defer d.wg.Done()

	log := d.log.WithFields(logger.String("policy_id", pol.ID))
	log.Info("Policy loop started",
		logger.Duration("frequency", pol.Frequency()))

	for {
		wait := pol.Frequency()
		if err := d.evaluator.Evaluate(ctx, pol); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("Policy evaluation failed")
			d.failures.EvaluationFailed(pol.ID)
			wait = d.recovery
		}

		if !sleep(ctx, wait) {
			log.Info("Policy loop stopped")
			return
		}
	}
}

// sleep waits for d or until ctx is cancelled, reporting whether the
// full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
