package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
)

func floatPtr(f float64) *float64 { return &f }

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name      string
		ports     []dsl.PortSpec
		data      map[string]interface{}
		wantError bool
		wantRule  dsl.RuleKind
	}{
		{
			name: "required present",
			ports: []dsl.PortSpec{{Name: "value", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleRequired}}}},
			data: map[string]interface{}{"value": "x"},
		},
		{
			name: "required missing",
			ports: []dsl.PortSpec{{Name: "value", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleRequired}}}},
			data:      map[string]interface{}{},
			wantError: true,
			wantRule:  dsl.RuleRequired,
		},
		{
			name: "required empty string",
			ports: []dsl.PortSpec{{Name: "value", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleRequired}}}},
			data:      map[string]interface{}{"value": ""},
			wantError: true,
			wantRule:  dsl.RuleRequired,
		},
		{
			name: "type match",
			ports: []dsl.PortSpec{{Name: "count", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleType, Type: "number"}}}},
			data: map[string]interface{}{"count": float64(3)},
		},
		{
			name: "type mismatch",
			ports: []dsl.PortSpec{{Name: "count", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleType, Type: "number"}}}},
			data:      map[string]interface{}{"count": "three"},
			wantError: true,
			wantRule:  dsl.RuleType,
		},
		{
			name: "type absent value passes",
			ports: []dsl.PortSpec{{Name: "count", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleType, Type: "number"}}}},
			data: map[string]interface{}{},
		},
		{
			name: "pattern match",
			ports: []dsl.PortSpec{{Name: "code", Rules: []dsl.ValidationRule{
				{Kind: dsl.RulePattern, Pattern: "^[A-Z]{3}$"}}}},
			data: map[string]interface{}{"code": "ABC"},
		},
		{
			name: "pattern mismatch",
			ports: []dsl.PortSpec{{Name: "code", Rules: []dsl.ValidationRule{
				{Kind: dsl.RulePattern, Pattern: "^[A-Z]{3}$"}}}},
			data:      map[string]interface{}{"code": "abc"},
			wantError: true,
			wantRule:  dsl.RulePattern,
		},
		{
			name: "pattern on non-string",
			ports: []dsl.PortSpec{{Name: "code", Rules: []dsl.ValidationRule{
				{Kind: dsl.RulePattern, Pattern: ".*"}}}},
			data:      map[string]interface{}{"code": 7},
			wantError: true,
			wantRule:  dsl.RulePattern,
		},
		{
			name: "range within",
			ports: []dsl.PortSpec{{Name: "n", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleRange, Min: floatPtr(0), Max: floatPtr(10)}}}},
			data: map[string]interface{}{"n": 5},
		},
		{
			name: "range below minimum",
			ports: []dsl.PortSpec{{Name: "n", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleRange, Min: floatPtr(0)}}}},
			data:      map[string]interface{}{"n": -1},
			wantError: true,
			wantRule:  dsl.RuleRange,
		},
		{
			name: "range above maximum",
			ports: []dsl.PortSpec{{Name: "n", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleRange, Max: floatPtr(10)}}}},
			data:      map[string]interface{}{"n": int64(11)},
			wantError: true,
			wantRule:  dsl.RuleRange,
		},
		{
			name: "enum allowed",
			ports: []dsl.PortSpec{{Name: "mode", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleEnum, Values: []interface{}{"fast", "slow"}}}}},
			data: map[string]interface{}{"mode": "fast"},
		},
		{
			name: "enum numeric across decoders",
			ports: []dsl.PortSpec{{Name: "level", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleEnum, Values: []interface{}{1, 2}}}}},
			data: map[string]interface{}{"level": float64(2)},
		},
		{
			name: "enum rejected",
			ports: []dsl.PortSpec{{Name: "mode", Rules: []dsl.ValidationRule{
				{Kind: dsl.RuleEnum, Values: []interface{}{"fast", "slow"}}}}},
			data:      map[string]interface{}{"mode": "medium"},
			wantError: true,
			wantRule:  dsl.RuleEnum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ApplyRules(tt.ports, tt.data)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsRuleViolation(err))

			var violation *RuleViolation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tt.wantRule, violation.Rule)
		})
	}
}

func TestApplyRulesReturnsFirstViolation(t *testing.T) {
	ports := []dsl.PortSpec{
		{Name: "a", Rules: []dsl.ValidationRule{{Kind: dsl.RuleRequired}}},
		{Name: "b", Rules: []dsl.ValidationRule{{Kind: dsl.RuleRequired}}},
	}

	var violation *RuleViolation
	err := ApplyRules(ports, map[string]interface{}{})
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "a", violation.Port)
}
