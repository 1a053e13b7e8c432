package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources/v2"

	"github.com/catherinevee/policyguard/internal/logger"
	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/pkg/models"
)

// resourceAPIVersion is used for by-ID mutations of generic resources.
const resourceAPIVersion = "2021-04-01"

// Provider implements the CloudProvider capability set against Azure
// Resource Manager.
type Provider struct {
	subscriptionID  string
	managementGroup string
	credential      *azidentity.DefaultAzureCredential
	tagsClient      *armresources.TagsClient
	log             logger.Logger

	mu      sync.Mutex
	clients map[string]*armresources.Client
}

// NewProvider creates an Azure provider bound to the given subscription.
// A non-empty managementGroup becomes the default scope for policies
// that do not name one.
func NewProvider(subscriptionID, managementGroup string) (*Provider, error) {
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := armresources.NewClient(subscriptionID, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure resource client: %w", err)
	}

	tagsClient, err := armresources.NewTagsClient(subscriptionID, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure tags client: %w", err)
	}

	return &Provider{
		subscriptionID:  subscriptionID,
		managementGroup: managementGroup,
		credential:      credential,
		tagsClient:      tagsClient,
		log:             logger.New("azure_provider"),
		clients:         map[string]*armresources.Client{subscriptionID: client},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "azure"
}

// ListByScope enumerates resources under a policy scope. Subscription
// scopes naming another subscription get their own resource client.
// Azure Resource Manager has no management-group enumeration API for
// generic resources, so management-group scopes list subscription-wide;
// the scope still partitions the caller's cache.
func (p *Provider) ListByScope(ctx context.Context, scope *policy.Scope) ([]models.Resource, error) {
	subscriptionID := p.subscriptionID
	managementGroup := p.managementGroup
	if scope != nil {
		if scope.Subscription != "" {
			subscriptionID = scope.Subscription
			managementGroup = ""
		}
		if scope.ManagementGroup != "" {
			managementGroup = scope.ManagementGroup
		}
	}
	if managementGroup != "" {
		p.log.Warn("Management group scope lists subscription-wide resources",
			logger.String("management_group", managementGroup),
			logger.String("subscription_id", subscriptionID))
	}

	client, err := p.clientFor(subscriptionID)
	if err != nil {
		return nil, err
	}

	var resources []models.Resource
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list resources in subscription %s: %w", subscriptionID, err)
		}
		for _, resource := range page.Value {
			resources = append(resources, p.convertResource(resource))
		}
	}
	return resources, nil
}

// Apply applies a remediation action to the resource.
func (p *Provider) Apply(ctx context.Context, resource models.Resource, action policy.RemediationAction) error {
	switch action.Type {
	case policy.ActionModify:
		return p.modifyResource(ctx, resource, action.Parameters)
	case policy.ActionDelete:
		return p.deleteResource(ctx, resource)
	case policy.ActionTag:
		return p.tagResource(ctx, resource, action.Parameters)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func (p *Provider) modifyResource(ctx context.Context, resource models.Resource, parameters map[string]interface{}) error {
	client, err := p.clientFor(p.subscriptionID)
	if err != nil {
		return err
	}

	poller, err := client.BeginUpdateByID(ctx, resource.ID, resourceAPIVersion, armresources.GenericResource{
		Properties: parameters,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to update resource %s: %w", resource.ID, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return fmt.Errorf("update of resource %s did not complete: %w", resource.ID, err)
	}
	return nil
}

func (p *Provider) deleteResource(ctx context.Context, resource models.Resource) error {
	client, err := p.clientFor(p.subscriptionID)
	if err != nil {
		return err
	}

	poller, err := client.BeginDeleteByID(ctx, resource.ID, resourceAPIVersion, nil)
	if err != nil {
		if isNotFound(err) {
			p.log.Debug("Resource already deleted", logger.String("resource_id", resource.ID))
			return nil
		}
		return fmt.Errorf("failed to delete resource %s: %w", resource.ID, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("deletion of resource %s did not complete: %w", resource.ID, err)
	}
	return nil
}

func (p *Provider) tagResource(ctx context.Context, resource models.Resource, parameters map[string]interface{}) error {
	// Merge policy tags over the resource's existing tags.
	tags := make(map[string]*string, len(resource.Tags)+len(parameters))
	for k, v := range resource.Tags {
		tags[k] = to.Ptr(v)
	}
	for k, v := range parameters {
		tags[k] = to.Ptr(fmt.Sprintf("%v", v))
	}

	poller, err := p.tagsClient.BeginCreateOrUpdateAtScope(ctx, resource.ID, armresources.TagsResource{
		Properties: &armresources.Tags{Tags: tags},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to tag resource %s: %w", resource.ID, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return fmt.Errorf("tagging of resource %s did not complete: %w", resource.ID, err)
	}
	return nil
}

// clientFor returns a resource client for the subscription, creating and
// caching one on first use.
func (p *Provider) clientFor(subscriptionID string) (*armresources.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[subscriptionID]; ok {
		return client, nil
	}
	client, err := armresources.NewClient(subscriptionID, p.credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource client for subscription %s: %w", subscriptionID, err)
	}
	p.clients[subscriptionID] = client
	return client, nil
}

// convertResource normalizes an ARM resource into the core model. The raw
// ARM type string (e.g. Microsoft.Compute/virtualMachines) is preserved so
// policies match the backend's type taxonomy.
func (p *Provider) convertResource(resource *armresources.GenericResourceExpanded) models.Resource {
	tags := make(map[string]string)
	if resource.Tags != nil {
		for k, v := range resource.Tags {
			if v != nil {
				tags[k] = *v
			}
		}
	}

	name := deref(resource.Name)
	if name == "" {
		name = nameFromID(deref(resource.ID))
	}

	attributes := map[string]interface{}{
		"name": name,
		"tags": tags,
	}
	if resource.Location != nil {
		attributes["location"] = *resource.Location
	}
	if resource.Kind != nil {
		attributes["kind"] = *resource.Kind
	}
	if resource.ProvisioningState != nil {
		attributes["provisioning_state"] = *resource.ProvisioningState
	}
	if resource.ManagedBy != nil {
		attributes["managed_by"] = *resource.ManagedBy
	}

	return models.Resource{
		ID:         deref(resource.ID),
		Name:       name,
		Type:       deref(resource.Type),
		Provider:   "azure",
		Region:     deref(resource.Location),
		Tags:       tags,
		Attributes: attributes,
	}
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}

func nameFromID(resourceID string) string {
	parts := strings.Split(resourceID, "/")
	if len(parts) == 0 {
		return resourceID
	}
	return parts[len(parts)-1]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
