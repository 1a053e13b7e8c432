package providers

import (
	"fmt"

	"github.com/catherinevee/policyguard/internal/providers/aws"
	"github.com/catherinevee/policyguard/internal/providers/azure"
)

// New constructs the provider named by the configuration. The rest of the
// daemon depends only on the CloudProvider interface.
func New(cfg Config) (CloudProvider, error) {
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription id is required")
	}

	switch cfg.Provider {
	case "azure":
		return azure.NewProvider(cfg.SubscriptionID, cfg.ManagementGroupID)
	case "aws":
		return aws.NewProvider(cfg.SubscriptionID, cfg.Region)
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %q", cfg.Provider)
	}
}
