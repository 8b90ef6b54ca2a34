package composition

// Retain snapshots params before running body and pairs the snapshot with the
// body's result as {params, result}. Options refine the snapshot:
//
//   - "filter": capture filter(params) instead of params,
//   - "catch": capture errors raised by body as the result instead of
//     propagating them,
//   - "field": snapshot only the named field of params.
//
// Filter and catch are consumed one at a time, in that order, each rewriting
// to simpler constructs; only "field" survives to the compiler.
func Retain(body any, options ...Options) (*Composition, error) {
	opts, err := takeOptions("retain", options)
	if err != nil {
		return nil, err
	}
	b, err := Task(body)
	if err != nil {
		return nil, err
	}
	return retainWith(b, opts)
}

func retainWith(body *Composition, opts Options) (*Composition, error) {
	if raw, ok := opts["filter"]; ok {
		delete(opts, "filter")
		return retainFilter(body, raw, prune(opts))
	}
	if raw, ok := opts["catch"]; ok {
		delete(opts, "catch")
		if raw == true {
			return retainCatch(body, prune(opts))
		}
	}
	node := &Composition{Type: KindRetain, Body: body, Options: prune(opts)}
	if err := node.hoist("retain", body); err != nil {
		return nil, err
	}
	return node, nil
}

// retainFilter captures filter(params), then retains body and pairs its result
// with the captured params instead of the originals.
func retainFilter(body *Composition, filter any, rest Options) (*Composition, error) {
	filterFn, err := Function(filter)
	if err != nil {
		return nil, err
	}
	capture, err := Retain(filterFn)
	if err != nil {
		return nil, err
	}
	inner, err := retainWith(body, rest)
	if err != nil {
		return nil, err
	}
	stash, err := Function("args => { filtered = args.result; return args.params }")
	if err != nil {
		return nil, err
	}
	pair, err := Function("args => ({ params: filtered, result: args.result })")
	if err != nil {
		return nil, err
	}
	scope, err := Let(map[string]any{"filtered": nil}, stash, inner, pair)
	if err != nil {
		return nil, err
	}
	return Sequence(capture, scope)
}

// retainCatch retains a finally that wraps body's outcome, error or not, in
// {result}, then unwraps so errors surface as the retained result.
func retainCatch(body *Composition, rest Options) (*Composition, error) {
	wrap, err := Function("result => ({ result })")
	if err != nil {
		return nil, err
	}
	guarded, err := Finally(body, wrap)
	if err != nil {
		return nil, err
	}
	inner, err := retainWith(guarded, rest)
	if err != nil {
		return nil, err
	}
	unwrap, err := Function("({ params, result }) => ({ params, result: result.result })")
	if err != nil {
		return nil, err
	}
	return Sequence(inner, unwrap)
}

// Repeat runs the given tasks count times.
func Repeat(count int, tasks ...any) (*Composition, error) {
	if count < 0 {
		return nil, newError("repeat", "count must not be negative", count)
	}
	body, err := Sequence(tasks...)
	if err != nil {
		return nil, err
	}
	test, err := Function("() => count-- > 0")
	if err != nil {
		return nil, err
	}
	loop, err := While(test, body)
	if err != nil {
		return nil, err
	}
	return Let(map[string]any{"count": count}, loop)
}

// Retry runs the given tasks and, when the outcome is an error, re-runs them
// up to count more times against the original params. The final outcome is
// that of the last attempt.
func Retry(count int, tasks ...any) (*Composition, error) {
	if count < 0 {
		return nil, newError("retry", "count must not be negative", count)
	}
	attempt := func() (*Composition, error) {
		body, err := Sequence(tasks...)
		if err != nil {
			return nil, err
		}
		return Retain(body, Options{"catch": true})
	}
	first, err := attempt()
	if err != nil {
		return nil, err
	}
	again, err := attempt()
	if err != nil {
		return nil, err
	}
	test, err := Function("({ result }) => typeof result.error !== 'undefined' && count-- > 0")
	if err != nil {
		return nil, err
	}
	restore, err := Function("({ params }) => params")
	if err != nil {
		return nil, err
	}
	redo, err := Finally(restore, again)
	if err != nil {
		return nil, err
	}
	loop, err := While(test, redo)
	if err != nil {
		return nil, err
	}
	project, err := Function("({ result }) => result")
	if err != nil {
		return nil, err
	}
	return Let(map[string]any{"count": count}, first, loop, project)
}
