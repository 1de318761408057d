// Package strings provides the builtin string transformation executor.
package strings

import (
	"context"
	"fmt"
	stdstrings "strings"

	"github.com/wehubfusion/Daedalus/pkg/executor"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ExecutorType is the capability type this executor registers under.
const ExecutorType = "strings"

// Executor applies a configured string operation to the node's "value" input.
type Executor struct{}

// New creates a strings executor.
func New() *Executor {
	return &Executor{}
}

// Execute reads config["operation"] and transforms inputs["value"].
// Supported operations: upper, lower, title, trim, concat (joins the "values"
// input with config["separator"]), replace (config "old"/"new").
func (e *Executor) Execute(_ context.Context, config map[string]interface{}, inputs map[string]interface{}) (*executor.Result, error) {
	op, _ := config["operation"].(string)
	if op == "" {
		return nil, executor.NewConfigError("config key 'operation' is required", nil)
	}

	if op == "concat" {
		raw, _ := inputs["values"].([]interface{})
		parts := make([]string, 0, len(raw))
		for _, item := range raw {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		separator, _ := config["separator"].(string)
		return result(stdstrings.Join(parts, separator)), nil
	}

	value, ok := inputs["value"].(string)
	if !ok {
		return nil, executor.NewConfigError("input 'value' must be a string", nil)
	}

	switch op {
	case "upper":
		return result(stdstrings.ToUpper(value)), nil
	case "lower":
		return result(stdstrings.ToLower(value)), nil
	case "title":
		return result(cases.Title(language.Und).String(value)), nil
	case "trim":
		return result(stdstrings.TrimSpace(value)), nil
	case "replace":
		old, _ := config["old"].(string)
		new, _ := config["new"].(string)
		if old == "" {
			return nil, executor.NewConfigError("replace operation needs config key 'old'", nil)
		}
		return result(stdstrings.ReplaceAll(value, old, new)), nil
	default:
		return nil, executor.NewConfigError(fmt.Sprintf("unknown operation '%s'", op), nil)
	}
}

func result(value string) *executor.Result {
	return &executor.Result{
		Outputs: map[string]interface{}{"value": value},
		Metrics: map[string]float64{"characters": float64(len(value))},
	}
}
