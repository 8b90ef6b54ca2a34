package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/composition"
)

type ValidateOptions struct {
	File    string
	Verbose bool
}

func NewValidateCmd() *cobra.Command {
	var opts ValidateOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a composition document",
		Long: `Validate a composition document against the schema and the builder,
then check that it compiles to a well-formed state machine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "composition.yaml", "Path to composition document")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")

	return cmd
}

func runValidate(opts ValidateOptions) error {
	doc, err := composition.LoadFile(opts.File)
	if err != nil {
		return err
	}
	if opts.Verbose {
		fmt.Printf("✓ Document %q is valid\n", doc.Name)
	}

	fsm, err := compiler.Compile(doc.Composition)
	if err != nil {
		return fmt.Errorf("composition does not compile: %w", err)
	}
	fmt.Printf("✓ %s: %d states, %d artifacts\n", doc.Name, len(fsm), len(doc.Composition.Artifacts()))
	return nil
}
