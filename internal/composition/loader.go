package composition

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Document is a composition file: metadata plus a sequence of nodes.
type Document struct {
	APIVersion  string
	Kind        string
	Name        string
	Description string
	Composition *Composition
}

// LoadFile reads, validates, and builds a composition document.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read composition file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse validates a YAML composition document against the embedded schema and
// builds its composition through the constructors.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	root := raw.(map[string]any)
	meta := root["metadata"].(map[string]any)
	doc := &Document{
		APIVersion: root["apiVersion"].(string),
		Kind:       root["kind"].(string),
		Name:       meta["name"].(string),
	}
	if desc, ok := meta["description"].(string); ok {
		doc.Description = desc
	}

	nodes, _ := root["composition"].([]any)
	tasks := make([]any, 0, len(nodes))
	for _, n := range nodes {
		c, err := buildNode(n)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, c)
	}
	c, err := Sequence(tasks...)
	if err != nil {
		return nil, err
	}
	doc.Composition = c.Named(doc.Name)
	return doc, nil
}

func validateDocument(raw any) error {
	var schemaDoc any
	if err := json.Unmarshal([]byte(documentSchema), &schemaDoc); err != nil {
		return fmt.Errorf("invalid embedded schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("composition.schema.json", schemaDoc); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("composition.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("composition document is invalid: %w", err)
	}
	return nil
}

// buildNode maps one document node onto the corresponding constructor. A bare
// string names an action; a list is a sequence; a map carries exactly one
// control keyword.
func buildNode(raw any) (*Composition, error) {
	switch v := raw.(type) {
	case string:
		return Action(v)
	case []any:
		tasks := make([]any, 0, len(v))
		for _, item := range v {
			c, err := buildNode(item)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, c)
		}
		return Sequence(tasks...)
	case map[string]any:
		return buildControl(v)
	case nil:
		return Sequence()
	default:
		return nil, newError("document", "invalid composition node", raw)
	}
}

func buildControl(node map[string]any) (*Composition, error) {
	if len(node) != 1 {
		return nil, newError("document", "a node must carry exactly one control keyword", node)
	}
	for keyword, body := range node {
		switch keyword {
		case "action":
			return buildAction(body)
		case "function":
			code, ok := body.(string)
			if !ok {
				return nil, newError("document", "function body must be source text", body)
			}
			return Function(code)
		case "literal", "value":
			return Literal(body)
		case "sequence":
			return buildNode(body)
		case "if":
			return buildIf(body)
		case "while":
			return buildWhile(body)
		case "try":
			return buildTry(body)
		case "finally":
			return buildFinally(body)
		case "let":
			return buildLet(body)
		case "retain":
			return buildRetain(body)
		case "repeat":
			return buildCounted(keyword, body, Repeat)
		case "retry":
			return buildCounted(keyword, body, Retry)
		default:
			return nil, newError("document", "unknown control keyword "+keyword, node)
		}
	}
	return nil, newError("document", "empty node", node)
}

func nodeMap(keyword string, body any) (map[string]any, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, newError("document", keyword+" body must be a mapping", body)
	}
	return m, nil
}

func childOrNil(m map[string]any, key string) (any, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	return buildNode(raw)
}

func requiredChild(keyword string, m map[string]any, key string) (*Composition, error) {
	raw, ok := m[key]
	if !ok {
		return nil, newError("document", fmt.Sprintf("%s requires %q", keyword, key), m)
	}
	return buildNode(raw)
}

func buildAction(body any) (*Composition, error) {
	switch v := body.(type) {
	case string:
		return Action(v)
	case map[string]any:
		name, _ := v["name"].(string)
		opts := Options{}
		for k, val := range v {
			if k != "name" {
				opts[k] = val
			}
		}
		if len(opts) == 0 {
			return Action(name)
		}
		return Action(name, opts)
	default:
		return nil, newError("document", "action must be a name or a mapping", body)
	}
}

func buildIf(body any) (*Composition, error) {
	m, err := nodeMap("if", body)
	if err != nil {
		return nil, err
	}
	test, err := requiredChild("if", m, "test")
	if err != nil {
		return nil, err
	}
	then, err := requiredChild("if", m, "then")
	if err != nil {
		return nil, err
	}
	alt, err := childOrNil(m, "else")
	if err != nil {
		return nil, err
	}
	if nosave, ok := m["nosave"].(bool); ok && nosave {
		return If(test, then, alt, Options{"nosave": true})
	}
	return If(test, then, alt)
}

func buildWhile(body any) (*Composition, error) {
	m, err := nodeMap("while", body)
	if err != nil {
		return nil, err
	}
	test, err := requiredChild("while", m, "test")
	if err != nil {
		return nil, err
	}
	do, err := requiredChild("while", m, "do")
	if err != nil {
		return nil, err
	}
	if nosave, ok := m["nosave"].(bool); ok && nosave {
		return While(test, do, Options{"nosave": true})
	}
	return While(test, do)
}

func buildTry(body any) (*Composition, error) {
	m, err := nodeMap("try", body)
	if err != nil {
		return nil, err
	}
	do, err := requiredChild("try", m, "do")
	if err != nil {
		return nil, err
	}
	handler, err := requiredChild("try", m, "catch")
	if err != nil {
		return nil, err
	}
	return Try(do, handler)
}

func buildFinally(body any) (*Composition, error) {
	m, err := nodeMap("finally", body)
	if err != nil {
		return nil, err
	}
	do, err := requiredChild("finally", m, "do")
	if err != nil {
		return nil, err
	}
	finalizer, err := requiredChild("finally", m, "finalizer")
	if err != nil {
		return nil, err
	}
	return Finally(do, finalizer)
}

func buildLet(body any) (*Composition, error) {
	m, err := nodeMap("let", body)
	if err != nil {
		return nil, err
	}
	decls, ok := m["declarations"].(map[string]any)
	if !ok {
		return nil, newError("document", "let requires declarations", m)
	}
	in, err := requiredChild("let", m, "in")
	if err != nil {
		return nil, err
	}
	return Let(decls, in)
}

func buildRetain(body any) (*Composition, error) {
	m, err := nodeMap("retain", body)
	if err != nil {
		return nil, err
	}
	do, err := requiredChild("retain", m, "do")
	if err != nil {
		return nil, err
	}
	opts := Options{}
	for _, key := range []string{"field", "filter", "catch"} {
		if v, ok := m[key]; ok {
			opts[key] = v
		}
	}
	if len(opts) == 0 {
		return Retain(do)
	}
	return Retain(do, opts)
}

func buildCounted(keyword string, body any, build func(int, ...any) (*Composition, error)) (*Composition, error) {
	m, err := nodeMap(keyword, body)
	if err != nil {
		return nil, err
	}
	count, ok := m["count"].(int)
	if !ok {
		return nil, newError("document", keyword+" requires an integer count", m)
	}
	do, err := requiredChild(keyword, m, "do")
	if err != nil {
		return nil, err
	}
	return build(count, do)
}
