// Package events carries the observability events the remediation
// controller emits and fans them out to registered sinks.
package events

import (
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PolicyViolationDetected Type = "PolicyViolationDetected"
	PolicyViolationWarning  Type = "PolicyViolationWarning"
	PolicyRemediation       Type = "PolicyRemediation"
	ImmediateRemediation    Type = "ImmediateRemediation"
	RemediationError        Type = "RemediationError"
)

// Event is one controller transition made visible to the outside.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"eventType"`
	ResourceID string                 `json:"resourceId"`
	PolicyID   string                 `json:"policyId"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Sink receives published events. Implementations must be safe for
// concurrent use. A sink error is logged by the bus and never reaches
// the publisher.
type Sink interface {
	Publish(event Event) error
}
