package policy

import (
	"fmt"
	"time"
)

// Operator is a condition operator.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "notEquals"
	OpContains  Operator = "contains"
	OpExists    Operator = "exists"
	OpNotExists Operator = "notExists"
)

// ActionType identifies a remediation action variant.
type ActionType string

const (
	ActionModify ActionType = "modify"
	ActionDelete ActionType = "delete"
	ActionTag    ActionType = "tag"
)

// Condition is one boolean predicate over a resource's attributes.
// Field is a dotted path; Value is unused for exists/notExists.
type Condition struct {
	Field    string      `json:"field" validate:"required"`
	Operator Operator    `json:"operator" validate:"required,oneof=equals notEquals contains exists notExists"`
	Value    interface{} `json:"value,omitempty"`
}

// Timing holds the grace period before a remediation action fires and the
// optional point at which a warning is emitted.
type Timing struct {
	Delay            Duration  `json:"delay"`
	WarningThreshold *Duration `json:"warning_threshold,omitempty"`
}

// RemediationAction describes what to do to a violating resource.
type RemediationAction struct {
	Type       ActionType             `json:"type" validate:"required,oneof=modify delete tag"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Timing     *Timing                `json:"timing,omitempty"`
}

// Scope restricts which resources a policy enumerates. Zero value means
// everything visible to the configured account.
type Scope struct {
	ManagementGroup string `json:"managementGroup,omitempty"`
	Subscription    string `json:"subscription,omitempty"`
}

// Scope descriptors partition the resource cache.
const ScopeAll = "all"

// Descriptor returns the cache key for the scope: "mg:<id>", "sub:<id>",
// or "all". Management group wins when both are set, matching evaluation
// order.
func (s *Scope) Descriptor() string {
	switch {
	case s == nil:
		return ScopeAll
	case s.ManagementGroup != "":
		return "mg:" + s.ManagementGroup
	case s.Subscription != "":
		return "sub:" + s.Subscription
	default:
		return ScopeAll
	}
}

// PolicyDefinition is the immutable in-memory representation of one policy.
type PolicyDefinition struct {
	ID                  string            `json:"id" validate:"required"`
	Name                string            `json:"name" validate:"required"`
	Description         string            `json:"description"`
	ResourceType        string            `json:"resource_type" validate:"required"`
	EvaluationFrequency int               `json:"evaluation_frequency" validate:"required,min=1"`
	Scope               *Scope            `json:"scope,omitempty"`
	Conditions          []Condition       `json:"conditions" validate:"dive"`
	RemediationAction   RemediationAction `json:"remediation_action"`
}

// Timed reports whether the policy's action carries a grace period.
func (p *PolicyDefinition) Timed() bool {
	return p.RemediationAction.Timing != nil
}

// Frequency returns the evaluation cadence as a duration.
func (p *PolicyDefinition) Frequency() time.Duration {
	return time.Duration(p.EvaluationFrequency) * time.Minute
}

// Validate applies the semantic checks the struct tags cannot express.
func (p *PolicyDefinition) Validate() error {
	if t := p.RemediationAction.Timing; t != nil {
		if t.Delay.Duration <= 0 {
			return fmt.Errorf("policy %s: timing.delay must be positive", p.ID)
		}
		if wt := t.WarningThreshold; wt != nil && wt.Duration >= t.Delay.Duration {
			return fmt.Errorf("policy %s: warning_threshold must be less than delay", p.ID)
		}
	}
	for i, c := range p.Conditions {
		switch c.Operator {
		case OpEquals, OpNotEquals, OpContains:
			if c.Value == nil {
				return fmt.Errorf("policy %s: condition %d: operator %s requires a value", p.ID, i, c.Operator)
			}
		}
	}
	return nil
}
