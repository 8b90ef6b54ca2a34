package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/conductor"
	"github.com/recinq/composer/internal/evaluator"
)

type ConductOptions struct {
	FSMPath string
}

func NewConductCmd() *cobra.Command {
	var opts ConductOptions

	cmd := &cobra.Command{
		Use:   "conduct",
		Short: "Run one conductor invocation",
		Long: `The wire entrypoint of a deployed composition: read the invocation
params as JSON on stdin, execute states until the composition terminates
or suspends on an action, and write the result to stdout. On suspension
the result carries the continuation under state.$resume; the platform
feeds it back on the next invocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConduct(opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.FSMPath, "fsm", "fsm.json", "Path to the compiled state machine")

	return cmd
}

func runConduct(opts ConductOptions, in io.Reader, out io.Writer) error {
	data, err := os.ReadFile(opts.FSMPath)
	if err != nil {
		return fmt.Errorf("failed to read state machine: %w", err)
	}
	var fsm []compiler.State
	if err := json.Unmarshal(data, &fsm); err != nil {
		return fmt.Errorf("invalid state machine: %w", err)
	}

	input, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read params: %w", err)
	}
	var params any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
	} else {
		params = map[string]any{}
	}

	outcome := conductor.New(fsm, evaluator.New()).Invoke(params)
	return json.NewEncoder(out).Encode(outcome.Wire())
}
