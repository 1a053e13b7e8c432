package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceKey(t *testing.T) {
	r := Resource{ID: "/subscriptions/s1/vm1", Type: "Cloud/VM"}
	assert.Equal(t, "/subscriptions/s1/vm1:Cloud/VM", r.Key())
}

func TestResourceField(t *testing.T) {
	r := Resource{
		Attributes: map[string]interface{}{
			"location": "eastus",
			"tags": map[string]string{
				"env": "dev",
			},
			"properties": map[string]interface{}{
				"sku": map[string]interface{}{
					"name": "Standard_B2s",
				},
				"disabled": nil,
			},
		},
	}

	tests := []struct {
		name  string
		path  string
		want  interface{}
		found bool
	}{
		{"top level", "location", "eastus", true},
		{"nested map", "properties.sku.name", "Standard_B2s", true},
		{"string map", "tags.env", "dev", true},
		{"missing segment", "properties.sku.tier", nil, false},
		{"missing top level", "owner", nil, false},
		{"path through scalar", "location.zone", nil, false},
		{"nil value is absent", "properties.disabled", nil, false},
		{"empty path", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Field(tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
