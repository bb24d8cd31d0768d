package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	StagesFile string

	// Getenv reads the environment. Nil means os.Getenv.
	Getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the canvaspipe CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canvaspipe",
		Short: "canvaspipe - staged content pipeline",
		Long: `Generate, review and approve marketing research content stage by stage.

Each stage's drafts are generated from the approved content of its upstream
stages; a stage can only be entered once every upstream stage is approved
for the selected project, segment and pain.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to canvaspipe.yaml")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.StagesFile, "stages", "", "CUE stage table replacing the built-in one")

	cmd.AddCommand(newStagesCommand(opts))
	cmd.AddCommand(newDraftsCommand(opts))
	cmd.AddCommand(newApproveCommand(opts))
	cmd.AddCommand(newApproveAllCommand(opts))
	cmd.AddCommand(newRevokeCommand(opts))
	cmd.AddCommand(newGateCommand(opts))
	cmd.AddCommand(newRegenCommand(opts))
	cmd.AddCommand(newTranslateCommand(opts))

	return cmd
}

func (o *RootOptions) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
