package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/composition"
	"github.com/recinq/composer/internal/display"
)

type CompileOptions struct {
	File   string
	Output string
}

func NewCompileCmd() *cobra.Command {
	var opts CompileOptions

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a composition to its state machine",
		Long: `Compile a composition document to the flat state machine the conductor
executes. Prints JSON when piped, a state listing on a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Root().PersistentFlags().GetString("output")
			return runCompile(opts, format)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "composition.yaml", "Path to composition document")
	cmd.Flags().StringVar(&opts.Output, "write", "", "Write the FSM JSON to a file instead of stdout")

	return cmd
}

func runCompile(opts CompileOptions, format string) error {
	doc, err := composition.LoadFile(opts.File)
	if err != nil {
		return err
	}
	fsm, err := compiler.Compile(doc.Composition)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", doc.Name, err)
	}

	if opts.Output != "" {
		data, err := fsmJSON(fsm)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write FSM: %w", err)
		}
		fmt.Printf("✓ wrote %d states to %s\n", len(fsm), opts.Output)
		return nil
	}

	human := format == OutputFormatText || (format == OutputFormatAuto && display.IsTerminal(os.Stdout))
	if !human {
		return printJSON(fsm)
	}

	rows := make([]display.StateRow, len(fsm))
	for i, s := range fsm {
		rows[i] = display.StateRow{Index: i, Type: string(s.Type), Detail: stateDetail(s)}
	}
	fmt.Print(display.NewFormatter().FSMTable(doc.Name, rows))
	return nil
}

func stateDetail(s compiler.State) string {
	detail := ""
	switch s.Type {
	case compiler.StateAction:
		detail = s.Name
	case compiler.StateFunction:
		detail = s.Exec.Code
	case compiler.StateLiteral:
		detail = fmt.Sprintf("%v", s.Value)
	case compiler.StateChoice:
		detail = fmt.Sprintf("then %+d, else %+d", s.Then, s.Else)
	case compiler.StateTry:
		detail = fmt.Sprintf("catch %+d", s.Catch)
	case compiler.StatePush:
		if s.Field != "" {
			detail = "field " + s.Field
		}
	case compiler.StatePop:
		if s.Collect {
			detail = "collect"
		}
	case compiler.StateLet:
		detail = fmt.Sprintf("%v", s.Let)
	}
	if s.Next != nil {
		if detail != "" {
			detail += "  "
		}
		detail += fmt.Sprintf("→ %+d", *s.Next)
	}
	if len(detail) > 60 {
		detail = detail[:60] + "..."
	}
	return detail
}
