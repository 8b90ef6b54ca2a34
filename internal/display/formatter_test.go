package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSMTableListsEveryState(t *testing.T) {
	f := NewFormatter()
	out := f.FSMTable("demo", []StateRow{
		{Index: 0, Type: "push"},
		{Index: 1, Type: "action", Detail: "hello"},
		{Index: 2, Type: "pop", Detail: "collect"},
	})

	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "action")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "collect")
	assert.Equal(t, 4, strings.Count(out, "\n")) // header plus one line per row
}

func TestSuccessAndFailureMarkers(t *testing.T) {
	f := NewFormatter()
	assert.Contains(t, f.Success("deployed"), "deployed")
	assert.Contains(t, f.Failure("broken"), "broken")
}
