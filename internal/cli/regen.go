package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/regen"
	"github.com/roach88/canvaspipe/internal/registry"
)

// RegenOptions holds flags for the regen command.
type RegenOptions struct {
	selectionFlags
	Context string
}

// RegenResult is the JSON output of regen.
type RegenResult struct {
	Stage registry.StageID `json:"stage"`
	RowID string           `json:"row_id"`
	Field string           `json:"field"`
	Value any              `json:"value"`
}

func newRegenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegenOptions{}
	cmd := &cobra.Command{
		Use:   "regen <stage> <row-id> <field>",
		Short: "Regenerate one field of a draft row",
		Long: `Ask the generator for a new value of a single field and write it back
to the row. Other fields of the row are left as they are, including edits
made while the request was in flight.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(rootOpts, opts, registry.StageID(args[0]), args[1], args[2], cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Context, "context", "", "extra guidance for the generator")
	return cmd
}

func runRegen(rootOpts *RootOptions, opts *RegenOptions, stage registry.StageID, rowID, field string, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.pipeline.Regenerate(cmd.Context(), stage, opts.sel, rowID, field, opts.Context)
	if errors.Is(err, regen.ErrDiscarded) {
		return s.out.FailWith(ExitFailure, ErrCodeGeneric, "regenerated value discarded", err)
	}
	if err != nil {
		return s.out.Fail("regenerate", err)
	}
	res := RegenResult{Stage: stage, RowID: rowID, Field: field, Value: v}
	return s.out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s.%s = %v\n", rowID, field, v)
	})
}
