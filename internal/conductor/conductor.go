// Package conductor interprets a compiled composition one platform invocation
// at a time. The interpreter is a single-threaded state and stack machine over
// (state, stack, params); it suspends whenever it reaches an action state and
// resumes from the continuation carried in the action's input parameters.
package conductor

import (
	"encoding/json"
	"fmt"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/jsonutil"
)

// Frame is one entry on the runtime stack: a catch target installed by try,
// lexical bindings installed by let, or a params snapshot installed by push.
type Frame struct {
	Catch  *int           `json:"catch,omitempty"`
	Let    map[string]any `json:"let,omitempty"`
	Params any            `json:"params,omitempty"`
}

// Continuation is the (state, stack) pair round-tripped through the platform
// on each action invocation. A nil state resumes at termination.
type Continuation struct {
	State *int    `json:"state,omitempty"`
	Stack []Frame `json:"stack"`
}

// ResumeKey is the parameter field that carries the continuation.
const ResumeKey = "$resume"

// FunctionEvaluator evaluates an inline function body against the current
// params and lexical environment. Mutations to environment names must be
// visible in env on return. A non-nil error reports a thrown exception;
// undefined and callable report those result shapes.
type FunctionEvaluator interface {
	Eval(code string, params any, env map[string]any) (value any, undefined, callable bool, err error)
}

// OutcomeKind classifies the result of one conductor invocation.
type OutcomeKind int

const (
	// OutcomeSuccess is a terminal success carrying the final params.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFailure is a terminal error with a code (default 500, 400 for
	// malformed resume requests).
	OutcomeFailure
	// OutcomeSuspended requests an action invocation and carries the
	// continuation to resume with.
	OutcomeSuspended
)

// Outcome is the wire-level result of one conductor invocation.
type Outcome struct {
	Kind   OutcomeKind
	Params any
	Error  string
	Code   int
	Action string
	Resume *Continuation
}

// Wire encodes the outcome in the platform exchange format.
func (o *Outcome) Wire() map[string]any {
	switch o.Kind {
	case OutcomeFailure:
		return map[string]any{"code": o.Code, "error": o.Error}
	case OutcomeSuspended:
		return map[string]any{
			"action": o.Action,
			"params": o.Params,
			"state":  map[string]any{ResumeKey: o.Resume},
		}
	default:
		return map[string]any{"params": o.Params}
	}
}

// Conductor interprets a fixed FSM. It holds no per-run state; Invoke may be
// called concurrently for independent runs.
type Conductor struct {
	fsm  []compiler.State
	eval FunctionEvaluator
}

func New(fsm []compiler.State, eval FunctionEvaluator) *Conductor {
	return &Conductor{fsm: fsm, eval: eval}
}

// Invoke runs one platform invocation: from the initial params on first entry,
// or from the continuation in params[$resume]. It executes states until the
// program terminates or an action suspends it.
func (c *Conductor) Invoke(params any) *Outcome {
	r := &run{fsm: c.fsm, eval: c.eval}
	if m, ok := params.(map[string]any); ok {
		if raw, present := m[ResumeKey]; present {
			if err := r.restore(raw, m); err != nil {
				return &Outcome{Kind: OutcomeFailure, Code: 400, Error: err.Error()}
			}
			r.inspect()
			return r.loop()
		}
	}
	r.state = intp(0)
	r.params = params
	return r.loop()
}

type run struct {
	fsm    []compiler.State
	eval   FunctionEvaluator
	state  *int
	stack  []Frame
	params any
}

func intp(i int) *int { return &i }

// restore validates and installs a continuation, stripping $resume from the
// remaining params. Malformed continuations are bad requests.
func (r *run) restore(raw any, params map[string]any) error {
	cont, err := decodeContinuation(raw)
	if err != nil {
		return err
	}
	r.state = cont.State
	r.stack = cont.Stack
	rest := make(map[string]any, len(params)-1)
	for k, v := range params {
		if k != ResumeKey {
			rest[k] = v
		}
	}
	r.params = rest
	return nil
}

func decodeContinuation(raw any) (*Continuation, error) {
	switch v := raw.(type) {
	case *Continuation:
		if v == nil || v.Stack == nil {
			return nil, fmt.Errorf("invalid %s: missing stack", ResumeKey)
		}
		return v, nil
	case Continuation:
		return decodeContinuation(&v)
	case map[string]any:
		if _, ok := v["stack"].([]any); !ok {
			return nil, fmt.Errorf("invalid %s: stack must be an array", ResumeKey)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", ResumeKey, err)
		}
		var cont Continuation
		if err := json.Unmarshal(data, &cont); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", ResumeKey, err)
		}
		if cont.Stack == nil {
			cont.Stack = []Frame{}
		}
		return &cont, nil
	default:
		return nil, fmt.Errorf("invalid %s: must be an object", ResumeKey)
	}
}

func (r *run) internalError(format string, args ...any) *Outcome {
	return &Outcome{Kind: OutcomeFailure, Code: 500, Error: fmt.Sprintf(format, args...)}
}

// loop executes states until termination or suspension.
func (r *run) loop() *Outcome {
	for {
		if r.state == nil {
			return r.terminal()
		}
		current := *r.state
		if current < 0 || current >= len(r.fsm) {
			return r.internalError("state %d out of range", current)
		}
		st := r.fsm[current]
		if st.Next != nil {
			r.state = intp(current + *st.Next)
		} else {
			r.state = nil
		}
		switch st.Type {
		case compiler.StateChoice:
			offset := st.Else
			if m, ok := r.params.(map[string]any); ok && m["value"] == true {
				offset = st.Then
			}
			r.state = intp(current + offset)
		case compiler.StateTry:
			r.push(Frame{Catch: intp(current + st.Catch)})
		case compiler.StateLet:
			decls, err := jsonutil.CloneMap(st.Let)
			if err != nil {
				return r.internalError("state %d: %v", current, err)
			}
			r.push(Frame{Let: decls})
		case compiler.StateExit:
			if len(r.stack) == 0 {
				return r.internalError("state %d: exit with empty stack", current)
			}
			r.stack = r.stack[1:]
		case compiler.StatePush:
			v := r.params
			if st.Field != "" {
				if m, ok := r.params.(map[string]any); ok {
					v = m[st.Field]
				} else {
					v = nil
				}
			}
			cloned, err := jsonutil.Clone(v)
			if err != nil {
				return r.internalError("state %d: %v", current, err)
			}
			r.push(Frame{Params: cloned})
		case compiler.StatePop:
			if len(r.stack) == 0 {
				return r.internalError("state %d: pop with empty stack", current)
			}
			frame := r.stack[0]
			r.stack = r.stack[1:]
			if frame.Catch != nil || frame.Let != nil {
				return r.internalError("state %d: pop of a non-params frame", current)
			}
			if st.Collect {
				r.params = map[string]any{"params": frame.Params, "result": r.params}
			} else {
				r.params = frame.Params
			}
		case compiler.StateAction:
			stack := make([]Frame, len(r.stack))
			copy(stack, r.stack)
			return &Outcome{
				Kind:   OutcomeSuspended,
				Action: st.Name,
				Params: r.params,
				Resume: &Continuation{State: r.state, Stack: stack},
			}
		case compiler.StateLiteral:
			value, err := jsonutil.Clone(st.Value)
			if err != nil {
				return r.internalError("state %d: %v", current, err)
			}
			r.params = value
			r.inspect()
		case compiler.StateFunction:
			if out := r.step(current, st); out != nil {
				return out
			}
			r.inspect()
		case compiler.StatePass:
			r.inspect()
		default:
			return r.internalError("state %d: unknown state type %q", current, st.Type)
		}
	}
}

// step evaluates a function state, substituting the documented error params
// for exceptions and function-valued results. A nil return means the step
// completed; a non-nil outcome aborts the run.
func (r *run) step(current int, st compiler.State) *Outcome {
	env := r.environment()
	value, undefined, callable, err := r.eval.Eval(st.Exec.Code, r.params, env)
	// Mutations made before a throw still happened; persist them regardless
	// of how the call ended.
	if out := r.writeBack(current, env); out != nil {
		return out
	}
	switch {
	case err != nil:
		r.params = map[string]any{"error": fmt.Sprintf("An exception was caught at state %d", current)}
	case callable:
		r.params = map[string]any{"error": fmt.Sprintf("State %d evaluated to a function", current)}
	case undefined:
		// keep current params
	default:
		cloned, cloneErr := jsonutil.Clone(value)
		if cloneErr != nil {
			return r.internalError("state %d: %v", current, cloneErr)
		}
		r.params = cloned
	}
	return nil
}

// environment merges the bindings of every live let frame, deepest first, so
// shallow frames shadow deeper ones on name collision.
func (r *run) environment() map[string]any {
	env := map[string]any{}
	for i := len(r.stack) - 1; i >= 0; i-- {
		for k, v := range r.stack[i].Let {
			env[k] = v
		}
	}
	return env
}

// writeBack propagates environment mutations to the topmost frame declaring
// each name. Names no live frame declares are dropped.
func (r *run) writeBack(current int, env map[string]any) *Outcome {
	for name, value := range env {
		for i := range r.stack {
			if r.stack[i].Let == nil {
				continue
			}
			if _, declared := r.stack[i].Let[name]; declared {
				cloned, err := jsonutil.Clone(value)
				if err != nil {
					return r.internalError("state %d: binding %q: %v", current, name, err)
				}
				r.stack[i].Let[name] = cloned
				break
			}
		}
	}
	return nil
}

func (r *run) push(f Frame) {
	r.stack = append([]Frame{f}, r.stack...)
}

// inspect wraps non-object params, then routes errors: on params.error, all
// other fields are discarded and the stack unwinds to the nearest catch
// frame, removing every frame it passes, the catch frame included.
func (r *run) inspect() {
	m, ok := r.params.(map[string]any)
	if !ok {
		m = map[string]any{"value": r.params}
		r.params = m
	}
	if _, present := m["error"]; !present {
		return
	}
	r.params = map[string]any{"error": m["error"]}
	r.state = nil
	for len(r.stack) > 0 {
		frame := r.stack[0]
		r.stack = r.stack[1:]
		if frame.Catch != nil {
			r.state = intp(*frame.Catch)
			return
		}
	}
}

// terminal encodes the final params: an error object becomes a failure with
// code 500 unless the error carried its own code.
func (r *run) terminal() *Outcome {
	if m, ok := r.params.(map[string]any); ok {
		if errVal, present := m["error"]; present {
			code := 500
			if c, ok := m["code"].(float64); ok {
				code = int(c)
			} else if c, ok := m["code"].(int); ok {
				code = c
			}
			msg, ok := errVal.(string)
			if !ok {
				msg = fmt.Sprintf("%v", errVal)
			}
			return &Outcome{Kind: OutcomeFailure, Code: code, Error: msg}
		}
	}
	return &Outcome{Kind: OutcomeSuccess, Params: r.params}
}
