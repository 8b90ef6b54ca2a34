package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskCoercion(t *testing.T) {
	t.Run("nil becomes empty sequence", func(t *testing.T) {
		c, err := Task(nil)
		require.NoError(t, err)
		assert.Equal(t, KindSequence, c.Type)
		assert.Empty(t, c.Components)
	})

	t.Run("string becomes action", func(t *testing.T) {
		c, err := Task("hello")
		require.NoError(t, err)
		assert.Equal(t, KindAction, c.Type)
		assert.Equal(t, "hello", c.Name)
	})

	t.Run("code becomes function", func(t *testing.T) {
		c, err := Task(Code("p => p"))
		require.NoError(t, err)
		assert.Equal(t, KindFunction, c.Type)
		assert.Equal(t, "p => p", c.Exec.Code)
		assert.Equal(t, "nodejs:default", c.Exec.Kind)
	})

	t.Run("composition is embedded by value", func(t *testing.T) {
		original, err := Literal(map[string]any{"x": 1})
		require.NoError(t, err)
		embedded, err := Task(original)
		require.NoError(t, err)
		assert.NotSame(t, original, embedded)
		assert.Equal(t, original.Value, embedded.Value)
	})

	t.Run("go function is rejected", func(t *testing.T) {
		_, err := Task(func() {})
		var cerr *ConstructionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Reason, "native function")
	})

	t.Run("other values are rejected", func(t *testing.T) {
		_, err := Task(42)
		var cerr *ConstructionError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 42, cerr.Argument)
	})
}

func TestSequenceNormalization(t *testing.T) {
	t.Run("nested sequences flatten", func(t *testing.T) {
		inner, err := Sequence("a", "b")
		require.NoError(t, err)
		outer, err := Sequence(inner, "c")
		require.NoError(t, err)
		require.Equal(t, KindSequence, outer.Type)
		require.Len(t, outer.Components, 3)
		assert.Equal(t, "a", outer.Components[0].Name)
		assert.Equal(t, "b", outer.Components[1].Name)
		assert.Equal(t, "c", outer.Components[2].Name)
	})

	t.Run("single element collapses", func(t *testing.T) {
		c, err := Sequence("only")
		require.NoError(t, err)
		assert.Equal(t, KindAction, c.Type)
		assert.Equal(t, "only", c.Name)
	})

	t.Run("empty sequence stays a sequence", func(t *testing.T) {
		c, err := Sequence()
		require.NoError(t, err)
		assert.Equal(t, KindSequence, c.Type)
		assert.Empty(t, c.Components)
	})
}

func TestIfArity(t *testing.T) {
	c, err := If("test", "yes", nil)
	require.NoError(t, err)
	assert.Equal(t, KindIf, c.Type)
	assert.Equal(t, KindSequence, c.Alternate.Type)

	_, err = If("test", "yes", "no", Options{"nosave": true}, Options{})
	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "too many arguments")
}

func TestLiteral(t *testing.T) {
	t.Run("defaults to empty object", func(t *testing.T) {
		c, err := Literal(nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, c.Value)
	})

	t.Run("clones its value", func(t *testing.T) {
		value := map[string]any{"a": 1}
		c, err := Literal(value)
		require.NoError(t, err)
		value["a"] = 2
		assert.Equal(t, float64(1), c.Value.(map[string]any)["a"])
	})

	t.Run("rejects callables", func(t *testing.T) {
		_, err := Literal(func() {})
		var cerr *ConstructionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Reason, "callable")
	})

	t.Run("rejects non-JSON values", func(t *testing.T) {
		_, err := Literal(map[string]any{"ch": make(chan int)})
		require.Error(t, err)
	})
}

func TestFunction(t *testing.T) {
	t.Run("wraps a string", func(t *testing.T) {
		c, err := Function("p => p")
		require.NoError(t, err)
		assert.Equal(t, &Exec{Kind: "nodejs:default", Code: "p => p"}, c.Exec)
	})

	t.Run("accepts an exec record", func(t *testing.T) {
		c, err := Function(Exec{Kind: "nodejs:10", Code: "p => p"})
		require.NoError(t, err)
		assert.Equal(t, "nodejs:10", c.Exec.Kind)
	})

	t.Run("accepts a map", func(t *testing.T) {
		c, err := Function(map[string]any{"kind": "nodejs:default", "code": "p => p"})
		require.NoError(t, err)
		assert.Equal(t, "p => p", c.Exec.Code)
	})

	t.Run("rejects built-in sources", func(t *testing.T) {
		_, err := Function("function cos() { [native code] }")
		var cerr *ConstructionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Reason, "native function")
	})

	t.Run("rejects empty code", func(t *testing.T) {
		_, err := Function("")
		require.Error(t, err)
	})
}

func TestOptionsRoundTrip(t *testing.T) {
	t.Run("unrecognized options are preserved", func(t *testing.T) {
		c, err := If("t", "a", "b", Options{"custom": "keep"})
		require.NoError(t, err)
		assert.Equal(t, "keep", c.Options["custom"])
	})

	t.Run("options are cloned", func(t *testing.T) {
		opts := Options{"nosave": true}
		c, err := While("t", "b", opts)
		require.NoError(t, err)
		opts["nosave"] = false
		assert.Equal(t, true, c.Options["nosave"])
	})

	t.Run("non-JSON options are rejected", func(t *testing.T) {
		_, err := If("t", "a", "b", Options{"fn": func() {}})
		require.Error(t, err)
	})
}

func TestLet(t *testing.T) {
	c, err := Let(map[string]any{"count": 3}, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, KindLet, c.Type)
	assert.Equal(t, float64(3), c.Declarations["count"])
	assert.Equal(t, KindSequence, c.Body.Type)

	_, err = Let(nil)
	require.Error(t, err)
}

func TestActionArtifacts(t *testing.T) {
	t.Run("plain action has no artifact", func(t *testing.T) {
		c, err := Action("hello")
		require.NoError(t, err)
		assert.Empty(t, c.Artifacts())
	})

	t.Run("native sequence artifact with namespacing", func(t *testing.T) {
		c, err := Action("combo", Options{"sequence": []string{"first", "/ns/second"}})
		require.NoError(t, err)
		require.Len(t, c.Artifacts(), 1)
		artifact := c.Artifacts()[0]
		assert.Equal(t, "combo", artifact.Name)
		exec := artifact.Action["exec"].(map[string]any)
		assert.Equal(t, "sequence", exec["kind"])
		assert.Equal(t, []string{"/_/first", "/ns/second"}, exec["components"])
	})

	t.Run("inline action body", func(t *testing.T) {
		body := map[string]any{"exec": map[string]any{"kind": "nodejs:default", "code": "x"}}
		c, err := Action("inline", Options{"action": body})
		require.NoError(t, err)
		require.Len(t, c.Artifacts(), 1)
		assert.Equal(t, body, c.Artifacts()[0].Action)
	})

	t.Run("artifacts hoist through parents", func(t *testing.T) {
		child, err := Action("leaf", Options{"action": map[string]any{"exec": "x"}})
		require.NoError(t, err)
		parent, err := Sequence(child, "other")
		require.NoError(t, err)
		require.Len(t, parent.Artifacts(), 1)
		assert.Equal(t, "leaf", parent.Artifacts()[0].Name)
	})

	t.Run("identical duplicates collapse", func(t *testing.T) {
		mk := func() *Composition {
			c, err := Action("dup", Options{"action": map[string]any{"exec": "same"}})
			require.NoError(t, err)
			return c
		}
		parent, err := Sequence(mk(), mk())
		require.NoError(t, err)
		assert.Len(t, parent.Artifacts(), 1)
	})

	t.Run("conflicting duplicates are rejected", func(t *testing.T) {
		a, err := Action("dup", Options{"action": map[string]any{"exec": "one"}})
		require.NoError(t, err)
		b, err := Action("dup", Options{"action": map[string]any{"exec": "two"}})
		require.NoError(t, err)
		_, err = Sequence(a, b)
		var cerr *ConstructionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Reason, "duplicate")
	})
}

func TestNamed(t *testing.T) {
	c, err := Sequence("a")
	require.NoError(t, err)
	assert.Equal(t, "", c.DeployName())
	c.Named("my-composition")
	assert.Equal(t, "my-composition", c.DeployName())
}
