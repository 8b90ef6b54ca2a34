package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/composition"
	"github.com/recinq/composer/internal/conductor"
	"github.com/recinq/composer/internal/openwhisk"
	"github.com/recinq/composer/internal/runner"
)

type RunOptions struct {
	File    string
	Input   string
	APIHost string
	Auth    string
	Mock    bool
	MaxInv  int
}

func NewRunCmd() *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a composition locally",
		Long: `Compile a composition and drive it to completion, invoking its actions
on the platform. With --mock, actions echo their input instead, which
exercises the control flow without a platform.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "composition.yaml", "Path to composition document")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Run input (JSON, or a raw string)")
	cmd.Flags().StringVar(&opts.APIHost, "apihost", "", "Platform API host (overrides credentials file)")
	cmd.Flags().StringVar(&opts.Auth, "auth", "", "Platform auth key (overrides credentials file)")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "Echo action invocations instead of calling the platform")
	cmd.Flags().IntVar(&opts.MaxInv, "max-invocations", 0, "Abort after this many action invocations (0 = unbounded)")

	return cmd
}

func runRun(cmd *cobra.Command, opts RunOptions) error {
	log := newLogger(cmd)

	doc, err := composition.LoadFile(opts.File)
	if err != nil {
		return err
	}
	fsm, err := compiler.Compile(doc.Composition)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", doc.Name, err)
	}

	var invoker runner.ActionInvoker
	if opts.Mock {
		invoker = runner.EchoRegistry{}
	} else {
		creds, err := openwhisk.LoadCredentials(
			openwhisk.WithAPIHost(opts.APIHost),
			openwhisk.WithAuth(opts.Auth),
		)
		if err != nil {
			return err
		}
		client, err := openwhisk.NewClient(creds, openwhisk.WithLogger(log))
		if err != nil {
			return err
		}
		invoker = platformInvoker{client: client}
	}

	runOpts := []runner.Option{
		runner.WithEmitter(newEmitter(cmd)),
		runner.WithLogger(log),
	}
	if opts.MaxInv > 0 {
		runOpts = append(runOpts, runner.WithMaxInvocations(opts.MaxInv))
	}
	if store := openStore(log); store != nil {
		defer store.Close()
		runOpts = append(runOpts, runner.WithStore(store))
	}

	out, err := runner.New(invoker, runOpts...).Run(cmd.Context(), doc.Name, fsm, parseInput(opts.Input))
	if err != nil {
		return err
	}
	if err := printJSON(out.Wire()); err != nil {
		return err
	}
	if out.Kind == conductor.OutcomeFailure {
		return fmt.Errorf("composition failed: %s", out.Error)
	}
	return nil
}

// platformInvoker adapts the OpenWhisk client to the runner.
type platformInvoker struct {
	client *openwhisk.Client
}

func (p platformInvoker) Invoke(ctx context.Context, name string, params any) (any, error) {
	return p.client.InvokeAction(ctx, name, params)
}
