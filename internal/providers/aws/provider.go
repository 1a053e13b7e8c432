package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/catherinevee/policyguard/internal/logger"
	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/pkg/models"
)

// Provider implements the CloudProvider capability set against AWS using
// the Resource Groups Tagging API, which enumerates taggable resources
// account-wide without per-service clients.
type Provider struct {
	accountID string
	region    string
	client    *resourcegroupstaggingapi.Client
	log       logger.Logger
}

// NewProvider creates an AWS provider using the default credential chain.
func NewProvider(accountID, region string) (*Provider, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Provider{
		accountID: accountID,
		region:    cfg.Region,
		client:    resourcegroupstaggingapi.NewFromConfig(cfg),
		log:       logger.New("aws_provider"),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "aws"
}

// ListByScope enumerates taggable resources in the account. AWS has no
// management-group analogue; subscription scopes map to the account and
// only partition the caller's cache.
func (p *Provider) ListByScope(ctx context.Context, scope *policy.Scope) ([]models.Resource, error) {
	var resources []models.Resource

	paginator := resourcegroupstaggingapi.NewGetResourcesPaginator(p.client, &resourcegroupstaggingapi.GetResourcesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list resources in account %s: %w", p.accountID, err)
		}
		for _, mapping := range page.ResourceTagMappingList {
			resources = append(resources, p.convertResource(mapping))
		}
	}
	return resources, nil
}

// Apply applies a remediation action to the resource. Only tagging is
// supported through the tagging API; modify and delete need per-service
// clients and are rejected.
func (p *Provider) Apply(ctx context.Context, resource models.Resource, action policy.RemediationAction) error {
	switch action.Type {
	case policy.ActionTag:
		return p.tagResource(ctx, resource, action.Parameters)
	case policy.ActionModify, policy.ActionDelete:
		return fmt.Errorf("action %s is not supported by the aws provider", action.Type)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func (p *Provider) tagResource(ctx context.Context, resource models.Resource, parameters map[string]interface{}) error {
	tags := make(map[string]string, len(parameters))
	for k, v := range parameters {
		tags[k] = fmt.Sprintf("%v", v)
	}

	out, err := p.client.TagResources(ctx, &resourcegroupstaggingapi.TagResourcesInput{
		ResourceARNList: []string{resource.ID},
		Tags:            tags,
	})
	if err != nil {
		return fmt.Errorf("failed to tag resource %s: %w", resource.ID, err)
	}
	if failure, ok := out.FailedResourcesMap[resource.ID]; ok {
		return fmt.Errorf("failed to tag resource %s: %s", resource.ID, aws.ToString(failure.ErrorMessage))
	}
	return nil
}

// convertResource normalizes a tag mapping into the core model. The
// resource type is derived from the ARN as "<service>:<resource-type>",
// the taxonomy the tagging API itself uses for filters.
func (p *Provider) convertResource(mapping types.ResourceTagMapping) models.Resource {
	arn := aws.ToString(mapping.ResourceARN)

	tags := make(map[string]string, len(mapping.Tags))
	for _, tag := range mapping.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	service, resourceType, name, region := parseARN(arn)

	attributes := map[string]interface{}{
		"arn":     arn,
		"name":    name,
		"service": service,
		"tags":    tags,
	}
	if region != "" {
		attributes["region"] = region
	}

	return models.Resource{
		ID:         arn,
		Name:       name,
		Type:       resourceType,
		Provider:   "aws",
		Region:     region,
		Tags:       tags,
		Attributes: attributes,
	}
}

// parseARN splits arn:aws:<service>:<region>:<account>:<type>/<name>
// (or <type>:<name>) into its interesting parts.
func parseARN(arn string) (service, resourceType, name, region string) {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return "", arn, arn, ""
	}
	service = parts[2]
	region = parts[3]
	rest := parts[5]

	sep := strings.IndexAny(rest, "/:")
	if sep < 0 {
		return service, service, rest, region
	}
	return service, service + ":" + rest[:sep], rest[sep+1:], region
}
