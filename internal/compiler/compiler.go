// Package compiler lowers a composition tree to a flat finite-state machine.
// States are zero-indexed; next, then, else, and catch are signed offsets
// relative to the owning state. A state without next terminates the program.
package compiler

import (
	"fmt"

	"github.com/recinq/composer/internal/composition"
	"github.com/recinq/composer/internal/jsonutil"
)

// StateType tags an FSM state.
type StateType string

const (
	StatePass     StateType = "pass"
	StateAction   StateType = "action"
	StateFunction StateType = "function"
	StateLiteral  StateType = "literal"
	StateChoice   StateType = "choice"
	StatePush     StateType = "push"
	StatePop      StateType = "pop"
	StateLet      StateType = "let"
	StateExit     StateType = "exit"
	StateTry      StateType = "try"
)

// State is one FSM state. Only the fields relevant to its type are set.
type State struct {
	Type    StateType         `json:"type"`
	Next    *int              `json:"next,omitempty"`
	Then    int               `json:"then,omitempty"`
	Else    int               `json:"else,omitempty"`
	Catch   int               `json:"catch,omitempty"`
	Name    string            `json:"name,omitempty"`
	Exec    *composition.Exec `json:"exec,omitempty"`
	Value   any               `json:"value,omitempty"`
	Let     map[string]any    `json:"let,omitempty"`
	Field   string            `json:"field,omitempty"`
	Collect bool              `json:"collect,omitempty"`
}

// Compile lowers a composition to its FSM. Compilation is deterministic and
// side-effect free; the result shares no mutable data with the input.
func Compile(c *composition.Composition) ([]State, error) {
	states, err := lower(c)
	if err != nil {
		return nil, err
	}
	if err := checkJumps(states); err != nil {
		return nil, err
	}
	return states, nil
}

func intp(i int) *int { return &i }

// setLastNext links the final state of a block to a relative target.
func setLastNext(states []State, next int) {
	states[len(states)-1].Next = intp(next)
}

// link joins a block into the following one by pointing its final state at
// the next index.
func link(states []State) []State {
	if len(states) > 0 && states[len(states)-1].Next == nil {
		setLastNext(states, 1)
	}
	return states
}

func lower(c *composition.Composition) ([]State, error) {
	switch c.Type {
	case composition.KindSequence:
		return lowerSequence(c)
	case composition.KindAction:
		return []State{{Type: StateAction, Name: c.Name}}, nil
	case composition.KindFunction:
		e := *c.Exec
		return []State{{Type: StateFunction, Exec: &e}}, nil
	case composition.KindLiteral:
		value, err := jsonutil.Clone(c.Value)
		if err != nil {
			return nil, fmt.Errorf("literal value: %w", err)
		}
		return []State{{Type: StateLiteral, Value: value}}, nil
	case composition.KindIf:
		return lowerIf(c)
	case composition.KindWhile:
		return lowerWhile(c)
	case composition.KindTry:
		return lowerTry(c)
	case composition.KindFinally:
		return lowerFinally(c)
	case composition.KindLet:
		return lowerLet(c)
	case composition.KindRetain:
		return lowerRetain(c)
	default:
		return nil, fmt.Errorf("cannot compile composition of type %q", c.Type)
	}
}

// lowerSequence concatenates its children, linking each non-terminal child
// into the next. An empty sequence lowers to a single pass.
func lowerSequence(c *composition.Composition) ([]State, error) {
	if len(c.Components) == 0 {
		return []State{{Type: StatePass}}, nil
	}
	var out []State
	for i, child := range c.Components {
		states, err := lower(child)
		if err != nil {
			return nil, err
		}
		if i < len(c.Components)-1 {
			states = link(states)
		}
		out = append(out, states...)
	}
	return out, nil
}

func nosave(c *composition.Composition) bool {
	return c.Options["nosave"] == true
}

// lowerIf emits push?, test, choice, then-branch, else-branch, pass. The
// branches restore the pre-test params with a leading pop unless nosave.
func lowerIf(c *composition.Composition) ([]State, error) {
	test, err := lower(c.Test)
	if err != nil {
		return nil, err
	}
	cons, err := lower(c.Consequent)
	if err != nil {
		return nil, err
	}
	alt, err := lower(c.Alternate)
	if err != nil {
		return nil, err
	}
	var out []State
	if !nosave(c) {
		out = append(out, State{Type: StatePush, Next: intp(1)})
		cons = append([]State{{Type: StatePop, Next: intp(1)}}, cons...)
		alt = append([]State{{Type: StatePop, Next: intp(1)}}, alt...)
	}
	out = append(out, link(test)...)
	out = append(out, State{Type: StateChoice, Then: 1, Else: len(cons) + 1})
	setLastNext(cons, len(alt)+1)
	out = append(out, cons...)
	out = append(out, link(alt)...)
	out = append(out, State{Type: StatePass})
	return out, nil
}

// lowerWhile emits push?, test, choice, body, pop?, pass; the body's final
// state jumps back to the start of the block so each iteration re-snapshots.
func lowerWhile(c *composition.Composition) ([]State, error) {
	test, err := lower(c.Test)
	if err != nil {
		return nil, err
	}
	body, err := lower(c.Body)
	if err != nil {
		return nil, err
	}
	var out []State
	if !nosave(c) {
		out = append(out, State{Type: StatePush, Next: intp(1)})
		body = append([]State{{Type: StatePop, Next: intp(1)}}, body...)
	}
	out = append(out, link(test)...)
	out = append(out, State{Type: StateChoice, Then: 1, Else: len(body) + 1})
	lastBody := len(out) + len(body) - 1
	setLastNext(body, -lastBody)
	out = append(out, body...)
	if !nosave(c) {
		out = append(out, State{Type: StatePop, Next: intp(1)})
	}
	out = append(out, State{Type: StatePass})
	return out, nil
}

// lowerTry emits try, body, exit, handler, pass. The exit unwinds the catch
// frame on the success path; an error unwind removes it instead, so the
// handler runs with the frame already gone.
func lowerTry(c *composition.Composition) ([]State, error) {
	body, err := lower(c.Body)
	if err != nil {
		return nil, err
	}
	handler, err := lower(c.Handler)
	if err != nil {
		return nil, err
	}
	var out []State
	out = append(out, State{Type: StateTry, Catch: len(body) + 2, Next: intp(1)})
	out = append(out, link(body)...)
	out = append(out, State{Type: StateExit, Next: intp(len(handler) + 1)})
	out = append(out, link(handler)...)
	out = append(out, State{Type: StatePass})
	return out, nil
}

// lowerFinally emits try, body, exit, finalizer. Both the success path (via
// the exit) and the error unwind land on the finalizer.
func lowerFinally(c *composition.Composition) ([]State, error) {
	body, err := lower(c.Body)
	if err != nil {
		return nil, err
	}
	finalizer, err := lower(c.Finalizer)
	if err != nil {
		return nil, err
	}
	var out []State
	out = append(out, State{Type: StateTry, Catch: len(body) + 2, Next: intp(1)})
	out = append(out, link(body)...)
	out = append(out, State{Type: StateExit, Next: intp(1)})
	out = append(out, finalizer...)
	return out, nil
}

func lowerLet(c *composition.Composition) ([]State, error) {
	body, err := lower(c.Body)
	if err != nil {
		return nil, err
	}
	decls, err := jsonutil.CloneMap(c.Declarations)
	if err != nil {
		return nil, fmt.Errorf("let declarations: %w", err)
	}
	if decls == nil {
		decls = map[string]any{}
	}
	var out []State
	out = append(out, State{Type: StateLet, Let: decls, Next: intp(1)})
	out = append(out, link(body)...)
	out = append(out, State{Type: StateExit})
	return out, nil
}

func lowerRetain(c *composition.Composition) ([]State, error) {
	body, err := lower(c.Body)
	if err != nil {
		return nil, err
	}
	field, _ := c.Options["field"].(string)
	var out []State
	out = append(out, State{Type: StatePush, Field: field, Next: intp(1)})
	out = append(out, link(body)...)
	out = append(out, State{Type: StatePop, Collect: true})
	return out, nil
}

// checkJumps verifies that every offset lands inside the FSM.
func checkJumps(states []State) error {
	inRange := func(i, offset int) error {
		target := i + offset
		if target < 0 || target >= len(states) {
			return fmt.Errorf("state %d: jump target %d out of range [0, %d)", i, target, len(states))
		}
		return nil
	}
	for i, s := range states {
		if s.Next != nil {
			if err := inRange(i, *s.Next); err != nil {
				return err
			}
		}
		if s.Type == StateChoice {
			if err := inRange(i, s.Then); err != nil {
				return err
			}
			if err := inRange(i, s.Else); err != nil {
				return err
			}
		}
		if s.Type == StateTry {
			if err := inRange(i, s.Catch); err != nil {
				return err
			}
		}
	}
	return nil
}
