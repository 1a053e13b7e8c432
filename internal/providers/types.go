package providers

import (
	"context"

	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/pkg/models"
)

// CloudProvider defines the capability set the policy core needs from a
// cloud backend. The engine and controller never branch on the concrete
// implementation.
type CloudProvider interface {
	// Name returns the provider name (e.g., "azure", "aws")
	Name() string

	// ListByScope enumerates resources visible under a policy scope.
	// Cost-heavy; callers go through the engine's resource cache.
	ListByScope(ctx context.Context, scope *policy.Scope) ([]models.Resource, error)

	// Apply applies a remediation action to a resource. Implementations
	// are idempotent where the backend permits; deleting an already
	// deleted resource is not an error.
	Apply(ctx context.Context, resource models.Resource, action policy.RemediationAction) error
}

// Config contains construction parameters for a provider.
type Config struct {
	// Provider name: "azure" or "aws"
	Provider string

	// Subscription (Azure) or account (AWS) identifier
	SubscriptionID string

	// Optional management group identifier (Azure)
	ManagementGroupID string

	// Region to operate in (AWS)
	Region string
}
