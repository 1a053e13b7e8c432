package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/policyguard/internal/policy"
)

type countingEvaluator struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newCountingEvaluator(err error) *countingEvaluator {
	return &countingEvaluator{calls: make(map[string]int), err: err}
}

func (e *countingEvaluator) Evaluate(ctx context.Context, pol policy.PolicyDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[pol.ID]++
	return e.err
}

func (e *countingEvaluator) count(policyID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[policyID]
}

type countingFailures struct {
	mu    sync.Mutex
	calls int
}

func (f *countingFailures) EvaluationFailed(policyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *countingFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testPolicy(id string) policy.PolicyDefinition {
	return policy.PolicyDefinition{
		ID:                  id,
		Name:                id,
		ResourceType:        "Cloud/VM",
		EvaluationFrequency: 1,
		RemediationAction: policy.RemediationAction{
			Type:       policy.ActionTag,
			Parameters: map[string]interface{}{"env": "dev"},
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartEvaluatesEveryPolicyImmediately(t *testing.T) {
	evaluator := newCountingEvaluator(nil)
	failures := &countingFailures{}
	d := New(evaluator, []policy.PolicyDefinition{testPolicy("p1"), testPolicy("p2")}, failures)

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	waitFor(t, func() bool {
		return evaluator.count("p1") >= 1 && evaluator.count("p2") >= 1
	})
	assert.Equal(t, 0, failures.count())
}

func TestStartTwiceFails(t *testing.T) {
	d := New(newCountingEvaluator(nil), []policy.PolicyDefinition{testPolicy("p1")}, &countingFailures{})

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	assert.Error(t, d.Start(context.Background()))
}

func TestStartWithoutPoliciesFails(t *testing.T) {
	d := New(newCountingEvaluator(nil), nil, &countingFailures{})
	assert.Error(t, d.Start(context.Background()))
}

func TestFailedTickCountsAndRecovers(t *testing.T) {
	evaluator := newCountingEvaluator(errors.New("listing failed"))
	failures := &countingFailures{}
	d := New(evaluator, []policy.PolicyDefinition{testPolicy("p1")}, failures,
		WithRecoveryDelay(5*time.Millisecond))

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	// The loop keeps ticking on the recovery cadence after failures.
	waitFor(t, func() bool { return evaluator.count("p1") >= 3 })
	waitFor(t, func() bool { return failures.count() >= 3 })
}

func TestStopDrainsLoops(t *testing.T) {
	evaluator := newCountingEvaluator(nil)
	d := New(evaluator, []policy.PolicyDefinition{testPolicy("p1")}, &countingFailures{})

	require.NoError(t, d.Start(context.Background()))
	waitFor(t, func() bool { return evaluator.count("p1") >= 1 })

	d.Stop()
	after := evaluator.count("p1")

	// No further ticks arrive once Stop returns.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, evaluator.count("p1"))

	// Stop is idempotent.
	d.Stop()
}

func TestContextCancelStopsLoops(t *testing.T) {
	evaluator := newCountingEvaluator(nil)
	d := New(evaluator, []policy.PolicyDefinition{testPolicy("p1")}, &countingFailures{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	waitFor(t, func() bool { return evaluator.count("p1") >= 1 })

	cancel()
	d.Stop()
}
