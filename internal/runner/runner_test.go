package runner

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/composition"
	"github.com/recinq/composer/internal/conductor"
	"github.com/recinq/composer/internal/event"
)

// must unwraps a constructor result; the err slot makes it usable directly
// around a two-valued builder call.
func must(c *composition.Composition, err error) *composition.Composition {
	if err != nil {
		panic(err)
	}
	return c
}

func compile(t *testing.T, c *composition.Composition) []compiler.State {
	t.Helper()
	fsm, err := compiler.Compile(c)
	require.NoError(t, err)
	return fsm
}

func TestRunInvokesActionsAndResumes(t *testing.T) {
	registry := NewRegistry()
	registry.Register("double", func(params any) (any, error) {
		m := params.(map[string]any)
		return map[string]any{"value": m["value"].(float64) * 2}, nil
	})

	fsm := compile(t, must(composition.Sequence(
		"double",
		composition.Code("p => ({ value: p.value + 1 })"),
		"double",
	)))

	out, err := New(registry).Run(context.Background(), "doubling", fsm, map[string]any{"value": float64(3)})
	require.NoError(t, err)
	require.Equal(t, conductor.OutcomeSuccess, out.Kind)
	assert.Equal(t, map[string]any{"value": float64(14)}, out.Params)
}

func TestRunRoutesInvokerErrorsToHandlers(t *testing.T) {
	registry := NewRegistry()
	registry.Register("boom", func(params any) (any, error) {
		return nil, fmt.Errorf("action exploded")
	})

	fsm := compile(t, must(composition.Try(
		"boom",
		composition.Code("e => ({ rescued: e.error })"),
	)))

	out, err := New(registry).Run(context.Background(), "rescue", fsm, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, conductor.OutcomeSuccess, out.Kind)
	assert.Equal(t, map[string]any{"rescued": "action exploded"}, out.Params)
}

func TestRunUnregisteredActionFails(t *testing.T) {
	fsm := compile(t, must(composition.Sequence("nowhere")))
	out, err := New(NewRegistry()).Run(context.Background(), "missing", fsm, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, conductor.OutcomeFailure, out.Kind)
	assert.Contains(t, out.Error, "not registered")
}

func TestRetryRunsAttemptsPlusOne(t *testing.T) {
	invocations := 0
	registry := NewRegistry()
	registry.Register("flaky", func(params any) (any, error) {
		invocations++
		return map[string]any{"error": "e"}, nil
	})

	fsm := compile(t, must(composition.Retry(2, "flaky")))
	out, err := New(registry).Run(context.Background(), "retrying", fsm, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, conductor.OutcomeFailure, out.Kind)
	assert.Equal(t, "e", out.Error)
	assert.Equal(t, 3, invocations)
}

func TestRetryStopsOnFirstSuccess(t *testing.T) {
	invocations := 0
	registry := NewRegistry()
	registry.Register("solid", func(params any) (any, error) {
		invocations++
		return map[string]any{"fine": true}, nil
	})

	fsm := compile(t, must(composition.Retry(2, "solid")))
	out, err := New(registry).Run(context.Background(), "retrying", fsm, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, conductor.OutcomeSuccess, out.Kind)
	assert.Equal(t, map[string]any{"fine": true}, out.Params)
	assert.Equal(t, 1, invocations)
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	registry := NewRegistry()
	registry.Register("step", func(params any) (any, error) { return params, nil })

	fsm := compile(t, must(composition.Sequence("step")))
	_, err := New(registry, WithEmitter(event.NewNDJSONEmitterWithWriter(&buf))).
		Run(context.Background(), "traced", fsm, map[string]any{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, event.StateStarted)
	assert.Contains(t, out, event.StateSuspended)
	assert.Contains(t, out, event.StateResumed)
	assert.Contains(t, out, event.StateCompleted)
}

func TestRunHonorsInvocationLimit(t *testing.T) {
	fsm := compile(t, must(composition.Repeat(10, "step")))
	_, err := New(EchoRegistry{}, WithMaxInvocations(3)).
		Run(context.Background(), "bounded", fsm, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invocation limit")
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fsm := compile(t, must(composition.Sequence("step")))
	_, err := New(EchoRegistry{}).Run(ctx, "cancelled", fsm, map[string]any{})
	require.Error(t, err)
}

func TestEchoRegistryEchoesParams(t *testing.T) {
	result, err := EchoRegistry{}.Invoke(context.Background(), "anything", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, result)
}
