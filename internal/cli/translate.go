package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/registry"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	selectionFlags
	Approved bool
	Keys     string
}

func newTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{}
	cmd := &cobra.Command{
		Use:   "translate <stage>",
		Short: "Show a stage's rows in the display language",
		Long: `Show the current drafts (or, with --approved, the approved records) of a
stage. With --lang set to a language other than the native one, string
fields are translated through the translation cache; rows that cannot be
translated are shown in their original language. --keys limits translation
to the named fields, as when a single tab of a report is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.Approved, "approved", false, "show approved records instead of drafts")
	cmd.Flags().StringVar(&opts.Keys, "keys", "", "comma-separated fields to translate (default: all)")
	return cmd
}

func runTranslate(rootOpts *RootOptions, opts *TranslateOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	view, err := s.pipeline.Render(cmd.Context(), stage, opts.sel, opts.Approved, splitList(opts.Keys)...)
	if err != nil {
		return s.out.Fail("render", err)
	}
	return s.out.Success(view, func(w io.Writer) {
		if view.Unavailable {
			fmt.Fprintln(w, "(translation unavailable for some rows; showing original text)")
		}
		for _, row := range view.Rows {
			mark := " "
			if row.Top {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %-36s  %s\n", mark, row.ID, row.Label)
		}
	})
}
