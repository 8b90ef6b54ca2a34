// Package evaluator runs inline function bodies. Bodies are ECMAScript source
// text (typically arrow functions); they receive the current params as their
// sole argument and see the lexical environment as plain variables.
package evaluator

import (
	"fmt"

	"github.com/dop251/goja"
)

// Evaluator executes function bodies in a fresh ECMAScript runtime per call,
// so no state leaks between steps beyond the environment it is handed.
type Evaluator struct{}

func New() *Evaluator { return &Evaluator{} }

// Eval compiles code to a function value and applies it to params. The env
// bindings are installed as global variables before the call and read back
// after it, so assignments to bound names are visible to the caller. The
// returned flags report an undefined result and a function-valued result; a
// non-nil error reports a thrown exception or non-function code.
func (e *Evaluator) Eval(code string, params any, env map[string]any) (any, bool, bool, error) {
	vm := goja.New()
	for name, value := range env {
		if err := vm.Set(name, value); err != nil {
			return nil, false, false, fmt.Errorf("failed to bind %q: %w", name, err)
		}
	}
	fnValue, err := vm.RunString("(" + code + ")")
	if err != nil {
		return nil, false, false, fmt.Errorf("function body failed to evaluate: %w", err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, false, false, fmt.Errorf("function body did not evaluate to a function")
	}
	result, callErr := fn(goja.Undefined(), vm.ToValue(params))
	readBack(vm, env)
	if callErr != nil {
		return nil, false, false, callErr
	}
	if result == nil || goja.IsUndefined(result) {
		return nil, true, false, nil
	}
	if _, isFn := goja.AssertFunction(result); isFn {
		return nil, false, true, nil
	}
	return result.Export(), false, false, nil
}

// readBack copies the current value of every bound name out of the runtime.
func readBack(vm *goja.Runtime, env map[string]any) {
	for name := range env {
		value := vm.Get(name)
		if value == nil || goja.IsUndefined(value) {
			env[name] = nil
			continue
		}
		env[name] = value.Export()
	}
}
