package strings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/executor"
)

func TestExecuteOperations(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		inputs map[string]interface{}
		want   string
	}{
		{
			name:   "upper",
			config: map[string]interface{}{"operation": "upper"},
			inputs: map[string]interface{}{"value": "hello"},
			want:   "HELLO",
		},
		{
			name:   "lower",
			config: map[string]interface{}{"operation": "lower"},
			inputs: map[string]interface{}{"value": "HeLLo"},
			want:   "hello",
		},
		{
			name:   "title",
			config: map[string]interface{}{"operation": "title"},
			inputs: map[string]interface{}{"value": "hello world"},
			want:   "Hello World",
		},
		{
			name:   "trim",
			config: map[string]interface{}{"operation": "trim"},
			inputs: map[string]interface{}{"value": "  padded  "},
			want:   "padded",
		},
		{
			name:   "replace",
			config: map[string]interface{}{"operation": "replace", "old": "a", "new": "o"},
			inputs: map[string]interface{}{"value": "banana"},
			want:   "bonono",
		},
		{
			name:   "concat",
			config: map[string]interface{}{"operation": "concat", "separator": ", "},
			inputs: map[string]interface{}{"values": []interface{}{"a", "b", 3}},
			want:   "a, b, 3",
		},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Execute(context.Background(), tt.config, tt.inputs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Outputs["value"])
			assert.Equal(t, float64(len(tt.want)), result.Metrics["characters"])
		})
	}
}

func TestExecuteConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		inputs map[string]interface{}
	}{
		{
			name:   "missing operation",
			config: map[string]interface{}{},
		},
		{
			name:   "unknown operation",
			config: map[string]interface{}{"operation": "reverse"},
			inputs: map[string]interface{}{"value": "x"},
		},
		{
			name:   "value not a string",
			config: map[string]interface{}{"operation": "upper"},
			inputs: map[string]interface{}{"value": 42},
		},
		{
			name:   "replace without old",
			config: map[string]interface{}{"operation": "replace", "new": "y"},
			inputs: map[string]interface{}{"value": "x"},
		},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), tt.config, tt.inputs)
			require.Error(t, err)

			var execErr *executor.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, executor.KindConfig, execErr.Kind)
			assert.False(t, execErr.Retryable)
		})
	}
}
