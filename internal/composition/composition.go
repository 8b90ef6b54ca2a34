package composition

import (
	"os"
	"reflect"
	"strings"

	"github.com/recinq/composer/internal/jsonutil"
)

// Kind identifies a composition node variant.
type Kind string

const (
	KindAction   Kind = "action"
	KindFunction Kind = "function"
	KindLiteral  Kind = "literal"
	KindSequence Kind = "sequence"
	KindIf       Kind = "if"
	KindWhile    Kind = "while"
	KindTry      Kind = "try"
	KindFinally  Kind = "finally"
	KindLet      Kind = "let"
	KindRetain   Kind = "retain"
)

// Exec holds an inline function body together with its runtime kind.
type Exec struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
}

// Code marks a string as inline function source rather than an action name.
// Task coerces plain strings to actions and Code values to functions.
type Code string

// Options carries per-node options. Recognized keys ("nosave", "field",
// "filter", "catch", "sequence", "filename", "action") are consumed by the
// builder or compiler; unrecognized keys are preserved but ignored.
type Options map[string]any

// Artifact is an action definition attached to a composition for deployment.
type Artifact struct {
	Name   string         `json:"name"`
	Action map[string]any `json:"action"`
}

// Composition is a node of the composition tree. Nodes are built through the
// package constructors, which normalize and validate; the zero value is not
// meaningful.
type Composition struct {
	Type         Kind           `json:"type"`
	Name         string         `json:"name,omitempty"`
	Exec         *Exec          `json:"exec,omitempty"`
	Value        any            `json:"value,omitempty"`
	Components   []*Composition `json:"components,omitempty"`
	Test         *Composition   `json:"test,omitempty"`
	Consequent   *Composition   `json:"consequent,omitempty"`
	Alternate    *Composition   `json:"alternate,omitempty"`
	Body         *Composition   `json:"body,omitempty"`
	Handler      *Composition   `json:"handler,omitempty"`
	Finalizer    *Composition   `json:"finalizer,omitempty"`
	Declarations map[string]any `json:"declarations,omitempty"`
	Options      Options        `json:"options,omitempty"`

	deployName string
	actions    []Artifact
}

// Named attaches a deployable identity to the composition and returns it.
func (c *Composition) Named(name string) *Composition {
	c.deployName = name
	return c
}

// DeployName returns the identity attached with Named, or "".
func (c *Composition) DeployName() string { return c.deployName }

// Artifacts returns the action artifacts captured by this composition and its
// embedded children.
func (c *Composition) Artifacts() []Artifact { return c.actions }

// clone deep-copies a node so that embedding is by value: a node handed to a
// constructor can be reused elsewhere without aliasing.
func (c *Composition) clone() *Composition {
	if c == nil {
		return nil
	}
	out := &Composition{
		Type:       c.Type,
		Name:       c.Name,
		Test:       c.Test.clone(),
		Consequent: c.Consequent.clone(),
		Alternate:  c.Alternate.clone(),
		Body:       c.Body.clone(),
		Handler:    c.Handler.clone(),
		Finalizer:  c.Finalizer.clone(),
		deployName: c.deployName,
	}
	if c.Exec != nil {
		e := *c.Exec
		out.Exec = &e
	}
	if c.Value != nil {
		v, _ := jsonutil.Clone(c.Value)
		out.Value = v
	}
	if c.Declarations != nil {
		d, _ := jsonutil.CloneMap(c.Declarations)
		out.Declarations = d
	}
	if c.Options != nil {
		o, _ := jsonutil.CloneMap(c.Options)
		out.Options = o
	}
	for _, child := range c.Components {
		out.Components = append(out.Components, child.clone())
	}
	for _, a := range c.actions {
		body, _ := jsonutil.CloneMap(a.Action)
		out.actions = append(out.actions, Artifact{Name: a.Name, Action: body})
	}
	return out
}

// hoist moves a child's attached artifacts into the parent. Identical
// duplicates collapse (the same attempt embedded twice, as retry does);
// two different artifacts under one name are a construction error.
func (c *Composition) hoist(op string, child *Composition) error {
	if child == nil {
		return nil
	}
	for _, a := range child.actions {
		if err := c.attach(op, a); err != nil {
			return err
		}
	}
	child.actions = nil
	return nil
}

func (c *Composition) attach(op string, a Artifact) error {
	for _, existing := range c.actions {
		if existing.Name == a.Name {
			if reflect.DeepEqual(existing.Action, a.Action) {
				return nil
			}
			return newError(op, "duplicate action artifact", a.Name)
		}
	}
	c.actions = append(c.actions, a)
	return nil
}

// takeOptions validates and clones a trailing options argument. Options are
// round-tripped through JSON; non-representable values are rejected.
func takeOptions(op string, options []Options) (Options, error) {
	if len(options) > 1 {
		return nil, newError(op, "too many arguments", len(options))
	}
	if len(options) == 0 || options[0] == nil {
		return nil, nil
	}
	cloned, err := jsonutil.CloneMap(options[0])
	if err != nil {
		return nil, newError(op, "options are not JSON-representable", options[0])
	}
	return cloned, nil
}

// Task coerces a value to a composition: nil becomes an empty sequence, an
// existing composition is embedded by value, a string names an action, and a
// Code value becomes an inline function.
func Task(task any) (*Composition, error) {
	switch v := task.(type) {
	case nil:
		return Sequence()
	case *Composition:
		return v.clone(), nil
	case Code:
		return Function(v)
	case string:
		return Action(v)
	default:
		if task != nil && reflect.TypeOf(task).Kind() == reflect.Func {
			return nil, newError("task", "cannot capture a native function", task)
		}
		return nil, newError("task", "invalid argument", task)
	}
}

// Sequence builds a sequence from the given tasks. Child sequences are fully
// flattened and a one-element sequence collapses to its element.
func Sequence(tasks ...any) (*Composition, error) {
	seq := &Composition{Type: KindSequence}
	for _, t := range tasks {
		child, err := Task(t)
		if err != nil {
			return nil, err
		}
		if err := seq.hoist("sequence", child); err != nil {
			return nil, err
		}
		if child.Type == KindSequence {
			seq.Components = append(seq.Components, child.Components...)
		} else {
			seq.Components = append(seq.Components, child)
		}
	}
	if len(seq.Components) == 1 {
		single := seq.Components[0]
		single.actions = seq.actions
		return single, nil
	}
	return seq, nil
}

// Seq is an alias for Sequence.
func Seq(tasks ...any) (*Composition, error) {
	return Sequence(tasks...)
}

// If builds a conditional. The test result selects the consequent or the
// alternate; unless the "nosave" option is set, the branches observe the
// params from before the test ran.
func If(test, consequent, alternate any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("if", options)
	if err != nil {
		return nil, err
	}
	node := &Composition{Type: KindIf, Options: opts}
	if node.Test, err = Task(test); err != nil {
		return nil, err
	}
	if node.Consequent, err = Task(consequent); err != nil {
		return nil, err
	}
	if node.Alternate, err = Task(alternate); err != nil {
		return nil, err
	}
	for _, child := range []*Composition{node.Test, node.Consequent, node.Alternate} {
		if err := node.hoist("if", child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// While builds a loop that re-runs body as long as the test selects it.
func While(test, body any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("while", options)
	if err != nil {
		return nil, err
	}
	node := &Composition{Type: KindWhile, Options: opts}
	if node.Test, err = Task(test); err != nil {
		return nil, err
	}
	if node.Body, err = Task(body); err != nil {
		return nil, err
	}
	for _, child := range []*Composition{node.Test, node.Body} {
		if err := node.hoist("while", child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Try builds an error handler scope: errors raised while body runs divert to
// handler with the error as params.
func Try(body, handler any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("try", options)
	if err != nil {
		return nil, err
	}
	node := &Composition{Type: KindTry, Options: opts}
	if node.Body, err = Task(body); err != nil {
		return nil, err
	}
	if node.Handler, err = Task(handler); err != nil {
		return nil, err
	}
	for _, child := range []*Composition{node.Body, node.Handler} {
		if err := node.hoist("try", child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Finally builds a scope whose finalizer runs whether body succeeds or fails.
func Finally(body, finalizer any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("finally", options)
	if err != nil {
		return nil, err
	}
	node := &Composition{Type: KindFinally, Options: opts}
	if node.Body, err = Task(body); err != nil {
		return nil, err
	}
	if node.Finalizer, err = Task(finalizer); err != nil {
		return nil, err
	}
	for _, child := range []*Composition{node.Body, node.Finalizer} {
		if err := node.hoist("finally", child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Let introduces lexical bindings visible to inline functions in body.
// Declarations must be JSON-representable.
func Let(declarations map[string]any, body ...any) (*Composition, error) {
	if declarations == nil {
		return nil, newError("let", "declarations are required", nil)
	}
	decls, err := jsonutil.CloneMap(declarations)
	if err != nil {
		return nil, newError("let", "declarations are not JSON-representable", declarations)
	}
	node := &Composition{Type: KindLet, Declarations: decls}
	if node.Body, err = Sequence(body...); err != nil {
		return nil, err
	}
	if err := node.hoist("let", node.Body); err != nil {
		return nil, err
	}
	return node, nil
}

// Literal produces a constant value. The value must be JSON-representable;
// an absent (nil) value defaults to an empty object.
func Literal(value any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("literal", options)
	if err != nil {
		return nil, err
	}
	if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
		return nil, newError("literal", "value must not be callable", value)
	}
	if value == nil {
		value = map[string]any{}
	}
	cloned, err := jsonutil.Clone(value)
	if err != nil {
		return nil, newError("literal", "value is not JSON-representable", value)
	}
	return &Composition{Type: KindLiteral, Value: cloned, Options: opts}, nil
}

// Function builds an inline function node from source text, a Code value, an
// Exec record, or a map with kind and code fields. Sources that report as
// built-in are rejected.
func Function(exec any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("function", options)
	if err != nil {
		return nil, err
	}
	var e *Exec
	switch v := exec.(type) {
	case string:
		e = &Exec{Kind: "nodejs:default", Code: v}
	case Code:
		e = &Exec{Kind: "nodejs:default", Code: string(v)}
	case Exec:
		e = &v
	case *Exec:
		if v == nil {
			return nil, newError("function", "exec is required", nil)
		}
		cp := *v
		e = &cp
	case map[string]any:
		kind, _ := v["kind"].(string)
		code, _ := v["code"].(string)
		if kind == "" {
			kind = "nodejs:default"
		}
		e = &Exec{Kind: kind, Code: code}
	default:
		if exec != nil && reflect.TypeOf(exec).Kind() == reflect.Func {
			return nil, newError("function", "cannot capture a native function", exec)
		}
		return nil, newError("function", "invalid argument", exec)
	}
	if strings.TrimSpace(e.Code) == "" {
		return nil, newError("function", "code is required", exec)
	}
	if strings.Contains(e.Code, "[native code]") {
		return nil, newError("function", "cannot capture a native function", e.Code)
	}
	return &Composition{Type: KindFunction, Exec: e, Options: opts}, nil
}

// Action references a named action. The "sequence", "filename", and "action"
// options additionally attach a deployable artifact under that name.
func Action(name string, options ...Options) (*Composition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError("action", "name is required", name)
	}
	opts, err := takeOptions("action", options)
	if err != nil {
		return nil, err
	}
	artifact, remaining, err := actionArtifact(name, opts)
	if err != nil {
		return nil, err
	}
	node := &Composition{Type: KindAction, Name: name, Options: remaining}
	if artifact != nil {
		if err := node.attach("action", *artifact); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// actionArtifact consumes the artifact-producing option keys, returning the
// artifact (if any) and the remaining options.
func actionArtifact(name string, opts Options) (*Artifact, Options, error) {
	if opts == nil {
		return nil, nil, nil
	}
	if raw, ok := opts["sequence"]; ok {
		delete(opts, "sequence")
		components, err := qualifiedComponents(raw)
		if err != nil {
			return nil, nil, err
		}
		return &Artifact{
			Name: name,
			Action: map[string]any{
				"exec": map[string]any{"kind": "sequence", "components": components},
			},
		}, prune(opts), nil
	}
	if raw, ok := opts["filename"]; ok {
		delete(opts, "filename")
		filename, ok := raw.(string)
		if !ok {
			return nil, nil, newError("action", "filename must be a string", raw)
		}
		code, err := os.ReadFile(filename)
		if err != nil {
			return nil, nil, newError("action", "cannot read action code: "+err.Error(), filename)
		}
		return &Artifact{
			Name: name,
			Action: map[string]any{
				"exec": map[string]any{"kind": "nodejs:default", "code": string(code)},
			},
		}, prune(opts), nil
	}
	if raw, ok := opts["action"]; ok {
		delete(opts, "action")
		body, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, newError("action", "action body must be an object", raw)
		}
		return &Artifact{Name: name, Action: body}, prune(opts), nil
	}
	return nil, prune(opts), nil
}

// qualifiedComponents normalizes a native-sequence component list, namespacing
// unqualified names under the default namespace.
func qualifiedComponents(raw any) ([]string, error) {
	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, newError("action", "sequence components must be strings", item)
			}
			names = append(names, s)
		}
	default:
		return nil, newError("action", "sequence must be a list of action names", raw)
	}
	out := make([]string, len(names))
	for i, n := range names {
		if strings.HasPrefix(n, "/") {
			out[i] = n
		} else {
			out[i] = "/_/" + n
		}
	}
	return out, nil
}

func prune(opts Options) Options {
	if len(opts) == 0 {
		return nil
	}
	return opts
}
