// Package script provides the builtin JavaScript executor. Node configs carry
// the program source; inputs are exposed to the script as globals and the
// script's final expression value becomes the node's outputs.
package script

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"go.uber.org/zap"
)

// ExecutorType is the capability type this executor registers under.
const ExecutorType = "script"

// dangerousGlobals are Node.js-ish globals removed from every VM before the
// script runs.
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

// Executor runs sandboxed JavaScript programs with goja.
type Executor struct {
	logger *zap.Logger
}

// New creates a script executor.
func New(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Execute compiles and runs the script from config["script"]. The script sees
// two globals, `inputs` and `config`, and must evaluate to an object, which is
// returned as the node's outputs.
func (e *Executor) Execute(ctx context.Context, config map[string]interface{}, inputs map[string]interface{}) (*executor.Result, error) {
	src, _ := config["script"].(string)
	if src == "" {
		return nil, executor.NewConfigError("config key 'script' is required", nil)
	}

	vm := goja.New()
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, executor.NewInternalError("failed to sandbox VM", err)
		}
	}
	if err := vm.Set("inputs", inputs); err != nil {
		return nil, executor.NewInternalError("failed to bind inputs", err)
	}
	if err := vm.Set("config", config); err != nil {
		return nil, executor.NewInternalError("failed to bind config", err)
	}

	// Interrupt the VM if the context is cancelled mid-script.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	start := time.Now()
	value, err := vm.RunString(src)
	elapsed := time.Since(start)

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, executor.NewTransientError("script interrupted", ctx.Err())
		}
		e.logger.Debug("Script threw", zap.Error(err))
		return nil, executor.NewConfigError("script threw an exception", err)
	}

	outputs := map[string]interface{}{}
	if exported, ok := value.Export().(map[string]interface{}); ok {
		outputs = exported
	} else if value != goja.Undefined() && value != goja.Null() {
		outputs["result"] = value.Export()
	}

	return &executor.Result{
		Outputs: outputs,
		Metrics: map[string]float64{"script_duration_ms": float64(elapsed.Milliseconds())},
	}, nil
}
