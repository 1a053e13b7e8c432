package engine

import (
	"reflect"
	"strings"

	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/pkg/models"
)

// EvaluateConditions reports whether the resource violates the policy's
// condition set. Conditions are conjunctive: all must match, and an empty
// list matches.
func EvaluateConditions(resource models.Resource, conditions []policy.Condition) bool {
	for _, condition := range conditions {
		if !evaluateCondition(resource, condition) {
			return false
		}
	}
	return true
}

func evaluateCondition(resource models.Resource, condition policy.Condition) bool {
	value, present := resource.Field(condition.Field)

	switch condition.Operator {
	case policy.OpEquals:
		return present && equalValues(value, condition.Value)
	case policy.OpNotEquals:
		return !present || !equalValues(value, condition.Value)
	case policy.OpExists:
		return present
	case policy.OpNotExists:
		return !present
	case policy.OpContains:
		return present && containsValue(value, condition.Value)
	default:
		// Unknown operators are rejected at load time; an unexpected one
		// here evaluates false, the safe default.
		return false
	}
}

// equalValues compares a resolved attribute against a condition value.
// JSON decoding yields float64 for every number, so numeric operands are
// normalized before comparison.
func equalValues(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// containsValue implements membership: key membership for maps, element
// equality for sequences, substring for strings.
func containsValue(resolved, want interface{}) bool {
	switch v := resolved.(type) {
	case map[string]interface{}:
		key, ok := want.(string)
		if !ok {
			return false
		}
		_, found := v[key]
		return found
	case map[string]string:
		key, ok := want.(string)
		if !ok {
			return false
		}
		_, found := v[key]
		return found
	case []interface{}:
		for _, item := range v {
			if equalValues(item, want) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if equalValues(item, want) {
				return true
			}
		}
		return false
	case string:
		sub, ok := want.(string)
		return ok && strings.Contains(v, sub)
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
