package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validPolicies = `{
  "policies": [
    {
      "id": "require-env-tag",
      "name": "Require env tag",
      "description": "Tag untagged VMs",
      "resource_type": "Cloud/VM",
      "evaluation_frequency": 5,
      "conditions": [
        {"field": "tags.env", "operator": "notExists"}
      ],
      "remediation_action": {
        "type": "tag",
        "parameters": {"env": "dev"}
      }
    },
    {
      "id": "expire-temp-storage",
      "name": "Expire temporary storage",
      "resource_type": "Cloud/Storage",
      "evaluation_frequency": 60,
      "scope": {"subscription": "sub-1"},
      "conditions": [
        {"field": "tags.temporary", "operator": "equals", "value": "true"}
      ],
      "remediation_action": {
        "type": "delete",
        "parameters": {},
        "timing": {"delay": "7d", "warning_threshold": "5d"}
      }
    }
  ]
}`

func TestLoad(t *testing.T) {
	policies, err := Load(writePolicyFile(t, validPolicies))
	require.NoError(t, err)
	require.Len(t, policies, 2)

	first := policies[0]
	assert.Equal(t, "require-env-tag", first.ID)
	assert.False(t, first.Timed())
	assert.Equal(t, 5*time.Minute, first.Frequency())
	assert.Equal(t, ScopeAll, first.Scope.Descriptor())

	second := policies[1]
	assert.True(t, second.Timed())
	assert.Equal(t, "sub:sub-1", second.Scope.Descriptor())
	assert.Equal(t, 7*24*time.Hour, second.RemediationAction.Timing.Delay.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadInvalidJSON(t *testing.T) {
	_, err := Load(writePolicyFile(t, `{"policies": [`))
	assert.Error(t, err)
}

func TestLoadRejectsWholeFileOnOneBadPolicy(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"missing id",
			`{"policies":[{"name":"x","resource_type":"T","evaluation_frequency":1,
				"remediation_action":{"type":"tag","parameters":{}}}]}`,
		},
		{
			"zero frequency",
			`{"policies":[{"id":"p","name":"x","resource_type":"T","evaluation_frequency":0,
				"remediation_action":{"type":"tag","parameters":{}}}]}`,
		},
		{
			"unknown operator",
			`{"policies":[{"id":"p","name":"x","resource_type":"T","evaluation_frequency":1,
				"conditions":[{"field":"a","operator":"matches","value":"x"}],
				"remediation_action":{"type":"tag","parameters":{}}}]}`,
		},
		{
			"unknown action type",
			`{"policies":[{"id":"p","name":"x","resource_type":"T","evaluation_frequency":1,
				"remediation_action":{"type":"reboot","parameters":{}}}]}`,
		},
		{
			"malformed duration",
			`{"policies":[{"id":"p","name":"x","resource_type":"T","evaluation_frequency":1,
				"remediation_action":{"type":"delete","parameters":{},"timing":{"delay":"7w"}}}]}`,
		},
		{
			"warning threshold not below delay",
			`{"policies":[{"id":"p","name":"x","resource_type":"T","evaluation_frequency":1,
				"remediation_action":{"type":"delete","parameters":{},
				"timing":{"delay":"5d","warning_threshold":"5d"}}}]}`,
		},
		{
			"equals without value",
			`{"policies":[{"id":"p","name":"x","resource_type":"T","evaluation_frequency":1,
				"conditions":[{"field":"a","operator":"equals"}],
				"remediation_action":{"type":"tag","parameters":{}}}]}`,
		},
		{
			"duplicate ids",
			`{"policies":[
				{"id":"p","name":"x","resource_type":"T","evaluation_frequency":1,
					"remediation_action":{"type":"tag","parameters":{}}},
				{"id":"p","name":"y","resource_type":"T","evaluation_frequency":1,
					"remediation_action":{"type":"tag","parameters":{}}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writePolicyFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestScopeDescriptor(t *testing.T) {
	var nilScope *Scope
	assert.Equal(t, "all", nilScope.Descriptor())
	assert.Equal(t, "all", (&Scope{}).Descriptor())
	assert.Equal(t, "sub:s1", (&Scope{Subscription: "s1"}).Descriptor())
	assert.Equal(t, "mg:m1", (&Scope{ManagementGroup: "m1"}).Descriptor())
	assert.Equal(t, "mg:m1", (&Scope{ManagementGroup: "m1", Subscription: "s1"}).Descriptor())
}
