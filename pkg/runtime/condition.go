package runtime

import (
	"fmt"

	"github.com/dop251/goja"
)

// EvaluateCondition evaluates an edge condition expression against the source
// node's outputs. The expression sees the outputs under the `outputs` global
// and must evaluate to a boolean-convertible value, e.g.
//
//	outputs.count > 3 && outputs.status == "ok"
//
// Evaluation is side-effect free from the engine's point of view: each call
// runs in a fresh VM with no host bindings beyond the outputs snapshot.
func EvaluateCondition(expr string, outputs map[string]interface{}) (bool, error) {
	if expr == "" {
		return true, nil
	}

	vm := goja.New()
	if outputs == nil {
		outputs = map[string]interface{}{}
	}
	if err := vm.Set("outputs", outputs); err != nil {
		return false, fmt.Errorf("failed to bind outputs: %w", err)
	}

	value, err := vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("condition '%s' failed to evaluate: %w", expr, err)
	}

	return value.ToBoolean(), nil
}
