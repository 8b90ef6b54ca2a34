package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/composition"
	"github.com/recinq/composer/internal/deployer"
	"github.com/recinq/composer/internal/event"
	"github.com/recinq/composer/internal/openwhisk"
)

type DeployOptions struct {
	File    string
	APIHost string
	Auth    string
	Image   string
}

func NewDeployCmd() *cobra.Command {
	var opts DeployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a composition to the platform",
		Long: `Compile a composition and push it, with its captured action artifacts,
to an OpenWhisk-compatible platform. Existing actions of the same names
are replaced. Credentials come from WSK_CONFIG_FILE (default ~/.wskprops)
unless overridden by flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "composition.yaml", "Path to composition document")
	cmd.Flags().StringVar(&opts.APIHost, "apihost", "", "Platform API host (overrides credentials file)")
	cmd.Flags().StringVar(&opts.Auth, "auth", "", "Platform auth key (overrides credentials file)")
	cmd.Flags().StringVar(&opts.Image, "image", "", "Conductor container image")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts DeployOptions) error {
	log := newLogger(cmd)

	doc, err := composition.LoadFile(opts.File)
	if err != nil {
		return err
	}

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

	deployOpts := []deployer.Option{deployer.WithLogger(log)}
	if opts.Image != "" {
		deployOpts = append(deployOpts, deployer.WithConductorImage(opts.Image))
	}
	d := deployer.New(client, deployOpts...)

	_, fsm, err := d.Package(doc.Composition)
	if err != nil {
		return err
	}

	updates, err := d.Deploy(cmd.Context(), doc.Composition)
	if err != nil {
		return fmt.Errorf("deployed %d of %d actions: %w",
			updates, len(doc.Composition.Artifacts())+1, err)
	}

	if store := openStore(log); store != nil {
		defer store.Close()
		if err := store.RecordDeployment(doc.Name, len(fsm), len(doc.Composition.Artifacts())); err != nil {
			log.Warn().Err(err).Msg("failed to record deployment")
		}
	}

	newEmitter(cmd).Emit(event.Event{
		Timestamp: time.Now(),
		State:     event.StateDeployed,
		Message:   fmt.Sprintf("%s (%d states, %d updates)", doc.Name, len(fsm), updates),
	})
	return nil
}
