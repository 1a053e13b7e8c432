// Package engine turns one policy into one evaluation tick: list the
// scope's resources through the cache, filter by type, match conditions,
// and hand each violator to the remediation controller.
package engine

import (
	"context"
	"fmt"

	"github.com/catherinevee/policyguard/internal/cache"
	"github.com/catherinevee/policyguard/internal/logger"
	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/internal/providers"
	"github.com/catherinevee/policyguard/pkg/models"
)

// Controller consumes violating resources and owns the per-record
// lifecycle. Satisfied by remediation.Controller.
type Controller interface {
	HandleViolation(ctx context.Context, resource models.Resource, pol policy.PolicyDefinition) error
	Sweep(pol policy.PolicyDefinition, violating map[string]struct{}) error
}

// Engine evaluates policies against the configured provider.
type Engine struct {
	provider   providers.CloudProvider
	cache      *cache.ResourceCache
	controller Controller
	log        logger.Logger
}

// New creates an engine.
func New(provider providers.CloudProvider, resourceCache *cache.ResourceCache, controller Controller) *Engine {
	return &Engine{
		provider:   provider,
		cache:      resourceCache,
		controller: controller,
		log:        logger.New("engine"),
	}
}

// Evaluate runs one tick for the policy. A listing failure fails the
// whole tick; the scheduler retries on the next cadence. A remediation
// failure aborts the remainder of the tick and surfaces to the loop.
func (e *Engine) Evaluate(ctx context.Context, pol policy.PolicyDefinition) error {
	descriptor := pol.Scope.Descriptor()

	resources, err := e.listResources(ctx, pol.Scope, descriptor)
	if err != nil {
		return fmt.Errorf("policy %s: %w", pol.ID, err)
	}

	violating := make(map[string]struct{})
	matched := 0
	for _, resource := range resources {
		if resource.Type != pol.ResourceType {
			continue
		}
		matched++
		if !EvaluateConditions(resource, pol.Conditions) {
			continue
		}
		violating[resource.Key()] = struct{}{}
		if err := e.controller.HandleViolation(ctx, resource, pol); err != nil {
			return fmt.Errorf("policy %s: %w", pol.ID, err)
		}
	}

	e.log.Debug("Evaluated policy",
		logger.String("policy_id", pol.ID),
		logger.String("scope", descriptor),
		logger.Int("resources", len(resources)),
		logger.Int("matched_type", matched),
		logger.Int("violating", len(violating)))

	if err := e.controller.Sweep(pol, violating); err != nil {
		return fmt.Errorf("policy %s: %w", pol.ID, err)
	}
	return nil
}

func (e *Engine) listResources(ctx context.Context, scope *policy.Scope, descriptor string) ([]models.Resource, error) {
	if resources, ok := e.cache.Get(descriptor); ok {
		return resources, nil
	}

	resources, err := e.provider.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources for scope %s: %w", descriptor, err)
	}
	e.cache.Set(descriptor, resources)
	return resources, nil
}
