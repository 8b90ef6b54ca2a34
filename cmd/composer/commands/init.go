package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/tui"
)

type InitOptions struct {
	Name       string
	APIHost    string
	Auth       string
	OutputPath string
	Force      bool
	Yes        bool
}

const exampleComposition = `apiVersion: composer/v1
kind: Composition
metadata:
  name: %s
composition:
  - try:
      do:
        - action: hello
      catch:
        - function: "err => ({ message: 'hello failed', error: err.error })"
`

func NewInitCmd() *cobra.Command {
	var opts InitOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new composition project",
		Long: `Create a starter composition document and, optionally, a credentials
file for the target platform. Without --yes the values are collected
through an interactive form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "demo", "Composition name")
	cmd.Flags().StringVar(&opts.APIHost, "apihost", "", "Platform API host to write to the credentials file")
	cmd.Flags().StringVar(&opts.Auth, "auth", "", "Platform auth key to write to the credentials file")
	cmd.Flags().StringVar(&opts.OutputPath, "output", "composition.yaml", "Output path for the composition document")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing files without prompting")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the interactive form")

	return cmd
}

func runInit(opts InitOptions) error {
	if !opts.Yes {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Composition name").
					Value(&opts.Name).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("a name is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("Platform API host (optional)").
					Placeholder("openwhisk.example.com").
					Value(&opts.APIHost),
				huh.NewInput().
					Title("Platform auth key (optional)").
					Placeholder("uuid:secret").
					EchoMode(huh.EchoModePassword).
					Value(&opts.Auth),
			),
		).WithTheme(tui.ComposerTheme())
		if err := form.Run(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(opts.OutputPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists; use --force to overwrite", opts.OutputPath)
	}
	content := fmt.Sprintf(exampleComposition, opts.Name)
	if err := os.WriteFile(opts.OutputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write composition document: %w", err)
	}
	fmt.Printf("✓ wrote %s\n", opts.OutputPath)

	if opts.APIHost != "" && opts.Auth != "" {
		if err := writeCredentials(opts); err != nil {
			return err
		}
	}
	return nil
}

func writeCredentials(opts InitOptions) error {
	path := os.Getenv("WSK_CONFIG_FILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".wskprops")
	}
	if _, err := os.Stat(path); err == nil && !opts.Force {
		fmt.Printf("  %s already exists; leaving it untouched\n", path)
		return nil
	}
	content := fmt.Sprintf("APIHOST=%s\nAUTH=%s\n", opts.APIHost, opts.Auth)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	fmt.Printf("✓ wrote %s\n", path)
	return nil
}
