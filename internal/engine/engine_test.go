package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/policyguard/internal/cache"
	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/pkg/models"
)

type listProvider struct {
	mu        sync.Mutex
	listCalls int
	resources []models.Resource
	err       error
}

func (p *listProvider) Name() string { return "fake" }

func (p *listProvider) ListByScope(ctx context.Context, scope *policy.Scope) ([]models.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return p.resources, p.err
}

func (p *listProvider) Apply(ctx context.Context, resource models.Resource, action policy.RemediationAction) error {
	return nil
}

func (p *listProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

type recordingController struct {
	violations []string
	sweeps     []map[string]struct{}
	err        error
}

func (c *recordingController) HandleViolation(ctx context.Context, resource models.Resource, pol policy.PolicyDefinition) error {
	if c.err != nil {
		return c.err
	}
	c.violations = append(c.violations, resource.ID)
	return nil
}

func (c *recordingController) Sweep(pol policy.PolicyDefinition, violating map[string]struct{}) error {
	c.sweeps = append(c.sweeps, violating)
	return nil
}

func vmPolicy(scope *policy.Scope) policy.PolicyDefinition {
	return policy.PolicyDefinition{
		ID:                  "p1",
		Name:                "p1",
		ResourceType:        "Cloud/VM",
		EvaluationFrequency: 5,
		Scope:               scope,
		Conditions: []policy.Condition{
			{Field: "tags.env", Operator: policy.OpNotExists},
		},
		RemediationAction: policy.RemediationAction{
			Type:       policy.ActionTag,
			Parameters: map[string]interface{}{"env": "dev"},
		},
	}
}

func vm(id string, tags map[string]string) models.Resource {
	return models.Resource{
		ID:   id,
		Type: "Cloud/VM",
		Tags: tags,
		Attributes: map[string]interface{}{
			"tags": tags,
		},
	}
}

func TestEvaluateFiltersAndDispatches(t *testing.T) {
	provider := &listProvider{resources: []models.Resource{
		vm("vm1", map[string]string{}),
		vm("vm2", map[string]string{"env": "prod"}),
		{ID: "disk1", Type: "Cloud/Disk", Attributes: map[string]interface{}{"tags": map[string]string{}}},
	}}
	controller := &recordingController{}
	e := New(provider, cache.New(time.Minute), controller)

	require.NoError(t, e.Evaluate(context.Background(), vmPolicy(nil)))

	// Only the untagged VM violates; the disk never reaches the
	// conditions and the tagged VM passes them.
	assert.Equal(t, []string{"vm1"}, controller.violations)

	require.Len(t, controller.sweeps, 1)
	assert.Equal(t, map[string]struct{}{"vm1:Cloud/VM": {}}, controller.sweeps[0])
}

func TestEvaluateSharesCacheAcrossPolicies(t *testing.T) {
	provider := &listProvider{resources: []models.Resource{vm("vm1", map[string]string{})}}
	controller := &recordingController{}
	resourceCache := cache.New(time.Minute)
	e := New(provider, resourceCache, controller)
	ctx := context.Background()

	scope := &policy.Scope{Subscription: "s1"}
	first := vmPolicy(scope)
	second := vmPolicy(scope)
	second.ID = "p2"

	require.NoError(t, e.Evaluate(ctx, first))
	require.NoError(t, e.Evaluate(ctx, second))
	assert.Equal(t, 1, provider.calls())

	// After the TTL the next tick refreshes.
	resourceCache.Invalidate(scope.Descriptor())
	require.NoError(t, e.Evaluate(ctx, first))
	assert.Equal(t, 2, provider.calls())
}

func TestEvaluateScopesDoNotShareCacheEntries(t *testing.T) {
	provider := &listProvider{resources: []models.Resource{vm("vm1", map[string]string{})}}
	e := New(provider, cache.New(time.Minute), &recordingController{})
	ctx := context.Background()

	require.NoError(t, e.Evaluate(ctx, vmPolicy(&policy.Scope{Subscription: "s1"})))
	require.NoError(t, e.Evaluate(ctx, vmPolicy(&policy.Scope{Subscription: "s2"})))
	assert.Equal(t, 2, provider.calls())
}

func TestEvaluateListFailureFailsTick(t *testing.T) {
	provider := &listProvider{err: errors.New("api throttled")}
	controller := &recordingController{}
	e := New(provider, cache.New(time.Minute), controller)

	err := e.Evaluate(context.Background(), vmPolicy(nil))
	require.Error(t, err)
	assert.Empty(t, controller.violations)
	assert.Empty(t, controller.sweeps)
}

func TestEvaluateControllerFailureAbortsTick(t *testing.T) {
	provider := &listProvider{resources: []models.Resource{vm("vm1", map[string]string{})}}
	controller := &recordingController{err: errors.New("state write failed")}
	e := New(provider, cache.New(time.Minute), controller)

	err := e.Evaluate(context.Background(), vmPolicy(nil))
	require.Error(t, err)
	// The sweep is skipped; stale records wait for a healthy tick.
	assert.Empty(t, controller.sweeps)
}
