package models

import "strings"

// Resource represents a cloud resource as seen by the policy core. Providers
// normalize their native shapes into the attribute map so the engine never
// depends on a concrete SDK type.
type Resource struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Provider   string                 `json:"provider"`
	Region     string                 `json:"region"`
	Tags       map[string]string      `json:"tags,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Key returns the state-store key for the resource.
func (r Resource) Key() string {
	return r.ID + ":" + r.Type
}

// Field resolves a dotted path against the resource's attributes. Each
// segment walks one level of nesting; a missing segment yields absent.
// Tag maps are navigable like any other nested map.
func (r Resource) Field(path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = r.Attributes
	for _, part := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]interface{}:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}
