package dsl

import (
	"fmt"
	"strings"
)

// NormalizeRule converts a loosely typed rule value into the canonical tagged
// ValidationRule. Two input shapes are accepted:
//
//   - a shorthand string: "required", "type:number", "pattern:^[a-z]+$"
//   - a map with a "kind" discriminator and kind-specific fields
//
// Anything else is rejected. This is the only place untyped rule shapes are
// allowed; downstream packages operate exclusively on ValidationRule.
func NormalizeRule(raw interface{}) (ValidationRule, error) {
	switch v := raw.(type) {
	case string:
		return normalizeRuleString(v)
	case map[string]interface{}:
		return normalizeRuleMap(v)
	case ValidationRule:
		return v, nil
	default:
		return ValidationRule{}, fmt.Errorf("unsupported rule shape %T", raw)
	}
}

func normalizeRuleString(s string) (ValidationRule, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch RuleKind(kind) {
	case RuleRequired:
		return ValidationRule{Kind: RuleRequired}, nil
	case RuleType:
		if arg == "" {
			return ValidationRule{}, fmt.Errorf("type rule needs an argument, e.g. \"type:number\"")
		}
		return ValidationRule{Kind: RuleType, Type: arg}, nil
	case RulePattern:
		if arg == "" {
			return ValidationRule{}, fmt.Errorf("pattern rule needs an argument, e.g. \"pattern:^x\"")
		}
		return ValidationRule{Kind: RulePattern, Pattern: arg}, nil
	default:
		return ValidationRule{}, fmt.Errorf("unknown rule shorthand '%s'", s)
	}
}

func normalizeRuleMap(m map[string]interface{}) (ValidationRule, error) {
	kind, _ := m["kind"].(string)
	if kind == "" {
		return ValidationRule{}, fmt.Errorf("rule map is missing 'kind'")
	}

	rule := ValidationRule{Kind: RuleKind(kind)}
	switch rule.Kind {
	case RuleRequired:
		return rule, nil
	case RuleType:
		rule.Type, _ = m["type"].(string)
		if rule.Type == "" {
			return ValidationRule{}, fmt.Errorf("type rule is missing 'type'")
		}
		return rule, nil
	case RulePattern:
		rule.Pattern, _ = m["pattern"].(string)
		if rule.Pattern == "" {
			return ValidationRule{}, fmt.Errorf("pattern rule is missing 'pattern'")
		}
		return rule, nil
	case RuleRange:
		if v, ok := toFloat(m["min"]); ok {
			rule.Min = &v
		}
		if v, ok := toFloat(m["max"]); ok {
			rule.Max = &v
		}
		if rule.Min == nil && rule.Max == nil {
			return ValidationRule{}, fmt.Errorf("range rule needs 'min' or 'max'")
		}
		return rule, nil
	case RuleEnum:
		values, _ := m["values"].([]interface{})
		if len(values) == 0 {
			return ValidationRule{}, fmt.Errorf("enum rule needs non-empty 'values'")
		}
		rule.Values = values
		return rule, nil
	default:
		return ValidationRule{}, fmt.Errorf("unknown rule kind '%s'", kind)
	}
}

// NormalizeSecret converts a loosely typed secret value into the canonical
// tagged SecretRef. Accepted shapes:
//
//   - a shorthand string: "env:API_KEY" or "vault:team/service#token"
//   - a map with "source", "name" and "key"
func NormalizeSecret(raw interface{}) (SecretRef, error) {
	switch v := raw.(type) {
	case string:
		source, key, ok := strings.Cut(v, ":")
		if !ok || key == "" {
			return SecretRef{}, fmt.Errorf("secret shorthand must look like \"env:NAME\", got '%s'", v)
		}
		ref := SecretRef{Source: SecretSource(source), Name: key, Key: key}
		if path, fragment, ok := strings.Cut(key, "#"); ok {
			// "vault:team/service#token" exposes the vault value at team/service as "token".
			ref.Key = path
			ref.Name = fragment
		}
		return checkSecretSource(ref)
	case map[string]interface{}:
		ref := SecretRef{}
		if s, ok := v["source"].(string); ok {
			ref.Source = SecretSource(s)
		}
		ref.Name, _ = v["name"].(string)
		ref.Key, _ = v["key"].(string)
		if ref.Name == "" || ref.Key == "" {
			return SecretRef{}, fmt.Errorf("secret map needs 'name' and 'key'")
		}
		return checkSecretSource(ref)
	case SecretRef:
		return checkSecretSource(v)
	default:
		return SecretRef{}, fmt.Errorf("unsupported secret shape %T", raw)
	}
}

func checkSecretSource(ref SecretRef) (SecretRef, error) {
	switch ref.Source {
	case SecretEnv, SecretVault:
		return ref, nil
	default:
		return SecretRef{}, fmt.Errorf("unknown secret source '%s'", ref.Source)
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
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
