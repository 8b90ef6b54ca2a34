package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recinq/composer/internal/composition"
)

// must unwraps a constructor result; the err slot makes it usable directly
// around a two-valued builder call.
func must(c *composition.Composition, err error) *composition.Composition {
	if err != nil {
		panic(err)
	}
	return c
}

func mustCompile(t *testing.T, c *composition.Composition) []State {
	t.Helper()
	fsm, err := Compile(c)
	require.NoError(t, err)
	return fsm
}

func next(t *testing.T, s State) int {
	t.Helper()
	require.NotNil(t, s.Next)
	return *s.Next
}

func TestEmptySequenceCompilesToPass(t *testing.T) {
	fsm := mustCompile(t, must(composition.Sequence()))
	require.Len(t, fsm, 1)
	assert.Equal(t, StatePass, fsm[0].Type)
	assert.Nil(t, fsm[0].Next)
}

func TestSequenceLinksChildren(t *testing.T) {
	fsm := mustCompile(t, must(composition.Sequence("a", "b", "c")))
	require.Len(t, fsm, 3)
	for i := 0; i < 2; i++ {
		assert.Equal(t, StateAction, fsm[i].Type)
		assert.Equal(t, 1, next(t, fsm[i]))
	}
	// The terminal child keeps its missing next: that encodes completion.
	assert.Nil(t, fsm[2].Next)
}

func TestAtomStates(t *testing.T) {
	fsm := mustCompile(t, must(composition.Sequence(
		composition.Code("p => p"),
		"act",
	)))
	require.Len(t, fsm, 2)
	assert.Equal(t, StateFunction, fsm[0].Type)
	assert.Equal(t, "p => p", fsm[0].Exec.Code)
	assert.Equal(t, StateAction, fsm[1].Type)
	assert.Equal(t, "act", fsm[1].Name)
}

func TestIfLayout(t *testing.T) {
	test, err := composition.Literal(map[string]any{"value": true})
	require.NoError(t, err)
	yes, err := composition.Literal("yes")
	require.NoError(t, err)
	no, err := composition.Literal("no")
	require.NoError(t, err)
	fsm := mustCompile(t, must(composition.If(test, yes, no)))

	// push, test, choice, pop, yes, pop, no, pass
	require.Len(t, fsm, 8)
	assert.Equal(t, StatePush, fsm[0].Type)
	assert.Equal(t, StateLiteral, fsm[1].Type)
	assert.Equal(t, StateChoice, fsm[2].Type)
	assert.Equal(t, 1, fsm[2].Then)
	assert.Equal(t, 3, fsm[2].Else)
	assert.Equal(t, StatePop, fsm[3].Type)
	assert.Equal(t, StateLiteral, fsm[4].Type)
	assert.Equal(t, 3, next(t, fsm[4])) // jump past the else branch to the join
	assert.Equal(t, StatePop, fsm[5].Type)
	assert.Equal(t, StateLiteral, fsm[6].Type)
	assert.Equal(t, 1, next(t, fsm[6]))
	assert.Equal(t, StatePass, fsm[7].Type)
	assert.Nil(t, fsm[7].Next)
}

func TestIfNosaveSkipsSnapshot(t *testing.T) {
	fsm := mustCompile(t, must(composition.If(
		composition.Code("p => p"), "yes", "no",
		composition.Options{"nosave": true},
	)))
	for _, s := range fsm {
		assert.NotEqual(t, StatePush, s.Type)
		assert.NotEqual(t, StatePop, s.Type)
	}
}

func TestWhileLayout(t *testing.T) {
	fsm := mustCompile(t, must(composition.While(
		composition.Code("() => count-- > 0"),
		composition.Code("() => ({})"),
	)))

	// push, test, choice, pop, body, pop, pass
	require.Len(t, fsm, 7)
	assert.Equal(t, StatePush, fsm[0].Type)
	assert.Equal(t, StateFunction, fsm[1].Type)
	assert.Equal(t, StateChoice, fsm[2].Type)
	assert.Equal(t, 1, fsm[2].Then)
	assert.Equal(t, 3, fsm[2].Else)
	assert.Equal(t, StatePop, fsm[3].Type)
	assert.Equal(t, StateFunction, fsm[4].Type)
	assert.Equal(t, -4, next(t, fsm[4])) // back to the push so each iteration re-snapshots
	assert.Equal(t, StatePop, fsm[5].Type)
	assert.Equal(t, StatePass, fsm[6].Type)
}

func TestTryLayout(t *testing.T) {
	fsm := mustCompile(t, must(composition.Try("work", "rescue")))

	// try, body, exit, handler, pass
	require.Len(t, fsm, 5)
	assert.Equal(t, StateTry, fsm[0].Type)
	assert.Equal(t, 3, fsm[0].Catch)
	assert.Equal(t, StateAction, fsm[1].Type)
	assert.Equal(t, 1, next(t, fsm[1]))
	assert.Equal(t, StateExit, fsm[2].Type)
	assert.Equal(t, 2, next(t, fsm[2])) // skip the handler
	assert.Equal(t, StateAction, fsm[3].Type)
	assert.Equal(t, StatePass, fsm[4].Type)
}

func TestFinallyLayout(t *testing.T) {
	fsm := mustCompile(t, must(composition.Finally("work", "cleanup")))

	// try, body, exit, finalizer
	require.Len(t, fsm, 4)
	assert.Equal(t, StateTry, fsm[0].Type)
	assert.Equal(t, 3, fsm[0].Catch) // error path lands on the finalizer
	assert.Equal(t, StateExit, fsm[2].Type)
	assert.Equal(t, 1, next(t, fsm[2]))
	assert.Equal(t, StateAction, fsm[3].Type)
	assert.Nil(t, fsm[3].Next)
}

func TestLetLayout(t *testing.T) {
	fsm := mustCompile(t, must(composition.Let(map[string]any{"n": 1}, "work")))

	require.Len(t, fsm, 3)
	assert.Equal(t, StateLet, fsm[0].Type)
	assert.Equal(t, map[string]any{"n": float64(1)}, fsm[0].Let)
	assert.Equal(t, StateAction, fsm[1].Type)
	assert.Equal(t, StateExit, fsm[2].Type)
	assert.Nil(t, fsm[2].Next)
}

func TestRetainLayout(t *testing.T) {
	fsm := mustCompile(t, must(composition.Retain("work", composition.Options{"field": "payload"})))

	require.Len(t, fsm, 3)
	assert.Equal(t, StatePush, fsm[0].Type)
	assert.Equal(t, "payload", fsm[0].Field)
	assert.Equal(t, StateAction, fsm[1].Type)
	assert.Equal(t, StatePop, fsm[2].Type)
	assert.True(t, fsm[2].Collect)
}

func TestCompileIsDeterministic(t *testing.T) {
	build := func() *composition.Composition {
		c, err := composition.Let(map[string]any{"count": 2},
			composition.Code("() => count-- > 0"))
		require.NoError(t, err)
		loop, err := composition.While(composition.Code("() => count-- > 0"), "step")
		require.NoError(t, err)
		out, err := composition.Sequence(c, loop)
		require.NoError(t, err)
		return out
	}
	first, err := Compile(build())
	require.NoError(t, err)
	second, err := Compile(build())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAllJumpsInRange(t *testing.T) {
	retry, err := composition.Retry(2, "attempt")
	require.NoError(t, err)
	repeat, err := composition.Repeat(3, "step")
	require.NoError(t, err)
	nested, err := composition.Try(
		composition.Code("() => ({})"),
		retry,
	)
	require.NoError(t, err)
	fsm := mustCompile(t, must(composition.Sequence(repeat, nested)))

	for i, s := range fsm {
		if s.Next != nil {
			target := i + *s.Next
			assert.GreaterOrEqual(t, target, 0)
			assert.Less(t, target, len(fsm))
		}
		if s.Type == StateChoice {
			assert.Less(t, i+s.Then, len(fsm))
			assert.Less(t, i+s.Else, len(fsm))
		}
		if s.Type == StateTry {
			assert.Less(t, i+s.Catch, len(fsm))
		}
	}
}

func TestCompileDoesNotAliasTheAST(t *testing.T) {
	value := map[string]any{"x": 1}
	lit, err := composition.Literal(value)
	require.NoError(t, err)
	fsm := mustCompile(t, lit)
	fsm[0].Value.(map[string]any)["x"] = 99

	again, err := Compile(lit)
	require.NoError(t, err)
	assert.Equal(t, float64(1), again[0].Value.(map[string]any)["x"])
}
