package runtime

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
)

// RuleViolation is a failed input or output validation. Input violations are
// configuration defects, never retried.
type RuleViolation struct {
	Port   string
	Rule   dsl.RuleKind
	Detail string
}

// Error implements the error interface.
func (e *RuleViolation) Error() string {
	return fmt.Sprintf("port '%s' failed %s rule: %s", e.Port, e.Rule, e.Detail)
}

// ApplyRules checks every declared port's validation rules against the data
// map. The first violation is returned.
func ApplyRules(ports []dsl.PortSpec, data map[string]interface{}) error {
	for _, port := range ports {
		value, present := data[port.Name]
		for _, rule := range port.Rules {
			if err := applyRule(port.Name, rule, value, present); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyRule(port string, rule dsl.ValidationRule, value interface{}, present bool) error {
	switch rule.Kind {
	case dsl.RuleRequired:
		if !present || value == nil {
			return &RuleViolation{Port: port, Rule: rule.Kind, Detail: "value is missing"}
		}
		if s, ok := value.(string); ok && s == "" {
			return &RuleViolation{Port: port, Rule: rule.Kind, Detail: "value is empty"}
		}
		return nil

	case dsl.RuleType:
		if !present {
			return nil
		}
		if actual := jsonType(value); actual != rule.Type {
			return &RuleViolation{Port: port, Rule: rule.Kind,
				Detail: fmt.Sprintf("expected %s, got %s", rule.Type, actual)}
		}
		return nil

	case dsl.RulePattern:
		if !present {
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return &RuleViolation{Port: port, Rule: rule.Kind, Detail: "pattern rule applies to strings"}
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return &RuleViolation{Port: port, Rule: rule.Kind,
				Detail: fmt.Sprintf("invalid pattern '%s': %v", rule.Pattern, err)}
		}
		if !re.MatchString(s) {
			return &RuleViolation{Port: port, Rule: rule.Kind,
				Detail: fmt.Sprintf("value does not match pattern '%s'", rule.Pattern)}
		}
		return nil

	case dsl.RuleRange:
		if !present {
			return nil
		}
		n, ok := toNumber(value)
		if !ok {
			return &RuleViolation{Port: port, Rule: rule.Kind, Detail: "range rule applies to numbers"}
		}
		if rule.Min != nil && n < *rule.Min {
			return &RuleViolation{Port: port, Rule: rule.Kind,
				Detail: fmt.Sprintf("%v is below minimum %v", n, *rule.Min)}
		}
		if rule.Max != nil && n > *rule.Max {
			return &RuleViolation{Port: port, Rule: rule.Kind,
				Detail: fmt.Sprintf("%v is above maximum %v", n, *rule.Max)}
		}
		return nil

	case dsl.RuleEnum:
		if !present {
			return nil
		}
		for _, allowed := range rule.Values {
			if reflect.DeepEqual(value, allowed) {
				return nil
			}
			// YAML and JSON decode numbers differently; compare numerically too.
			if a, ok := toNumber(value); ok {
				if b, ok := toNumber(allowed); ok && a == b {
					return nil
				}
			}
		}
		return &RuleViolation{Port: port, Rule: rule.Kind,
			Detail: fmt.Sprintf("value %v is not one of the allowed values", value)}

	default:
		return &RuleViolation{Port: port, Rule: rule.Kind, Detail: "unknown rule kind"}
	}
}

func jsonType(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, uint64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	default:
		return reflect.TypeOf(value).Kind().String()
	}
}

func toNumber(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
