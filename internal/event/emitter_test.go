package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDJSONEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	e := NewNDJSONEmitterWithWriter(&buf)

	e.Emit(Event{Timestamp: time.Now(), RunID: "r1", State: StateStarted})
	e.Emit(Event{Timestamp: time.Now(), RunID: "r1", State: StateCompleted, DurationMs: 12})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "r1", first.RunID)
	assert.Equal(t, StateStarted, first.State)
}

func TestHumanReadableOutput(t *testing.T) {
	var buf bytes.Buffer
	e := NewHumanReadableEmitter(&buf)

	e.Emit(Event{Timestamp: time.Now(), State: StateSuspended, Action: "fetch"})

	out := buf.String()
	assert.Contains(t, out, StateSuspended)
	assert.Contains(t, out, "fetch")
	assert.NotContains(t, out, "{")
}
