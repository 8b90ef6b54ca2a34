package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/display"
	"github.com/recinq/composer/internal/event"
	"github.com/recinq/composer/internal/state"
)

// Output format constants.
const (
	OutputFormatAuto = "auto"
	OutputFormatJSON = "json"
	OutputFormatText = "text"
)

// newLogger builds the CLI logger, honoring the --debug persistent flag.
func newLogger(cmd *cobra.Command) zerolog.Logger {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// newEmitter picks NDJSON or human-readable events from the --output flag;
// auto follows terminal detection.
func newEmitter(cmd *cobra.Command) event.EventEmitter {
	format, _ := cmd.Root().PersistentFlags().GetString("output")
	switch format {
	case OutputFormatJSON:
		return event.NewNDJSONEmitter()
	case OutputFormatText:
		return event.NewHumanReadableEmitter(os.Stderr)
	default:
		if display.IsTerminal(os.Stdout) {
			return event.NewHumanReadableEmitter(os.Stderr)
		}
		return event.NewNDJSONEmitter()
	}
}

// statePath resolves the local database path, creating its directory.
func statePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".composer")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return filepath.Join(dir, "composer.db"), nil
}

// openStore opens the local run-history store. Callers that can proceed
// without history treat a nil store as "don't record".
func openStore(log zerolog.Logger) state.Store {
	path, err := statePath()
	if err != nil {
		log.Warn().Err(err).Msg("run history disabled")
		return nil
	}
	store, err := state.NewStore(path)
	if err != nil {
		log.Warn().Err(err).Msg("run history disabled")
		return nil
	}
	return store
}

// parseInput decodes the run input: JSON when it parses, a raw string value
// otherwise, an empty object when absent.
func parseInput(input string) any {
	if input == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return input
	}
	return v
}

func fsmJSON(fsm []compiler.State) ([]byte, error) {
	data, err := json.MarshalIndent(fsm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode FSM: %w", err)
	}
	return data, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
