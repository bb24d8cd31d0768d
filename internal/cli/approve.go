package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/approval"
	"github.com/roach88/canvaspipe/internal/pipeline"
	"github.com/roach88/canvaspipe/internal/registry"
)

// ApproveOptions holds flags for approve, approve-all and revoke.
type ApproveOptions struct {
	selectionFlags
	IDs      string
	All      bool
	Version  int64
	Segments string
}

func newApproveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApproveOptions{}
	cmd := &cobra.Command{
		Use:   "approve <stage>",
		Short: "Approve draft rows of a stage",
		Long: `Copy the chosen draft rows into the stage's approved set, replacing any
previous approval at the scope. A ranking stage must include at least one
row marked top.`,
		Example: `  canvaspipe approve jobs --project p1 --segment s1 --ids 0190...,0190...
  canvaspipe approve pains-ranking --project p1 --segment s1 --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprove(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.IDs, "ids", "", "comma-separated draft row ids")
	cmd.Flags().BoolVar(&opts.All, "all", false, "approve every current draft row")
	cmd.Flags().Int64Var(&opts.Version, "if-version", 0, "fail unless every approved row is at this draft version")
	cmd.MarkFlagsMutuallyExclusive("ids", "all")
	cmd.MarkFlagsOneRequired("ids", "all")
	return cmd
}

func newApproveAllCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApproveOptions{}
	cmd := &cobra.Command{
		Use:   "approve-all <stage>",
		Short: "Approve the current drafts of a segment stage for several segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApproveAll(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Segments, "segments", "", "comma-separated segment ids (default: approved segments)")
	return cmd
}

func newRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApproveOptions{}
	cmd := &cobra.Command{
		Use:   "revoke <stage>",
		Short: "Remove a stage's approved set at the selected scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevoke(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runApprove(rootOpts *RootOptions, opts *ApproveOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var approveOpts []approval.ApproveOption
	if opts.Version > 0 {
		approveOpts = append(approveOpts, approval.AtVersion(opts.Version))
	}
	var res approval.Result
	if opts.All {
		res, err = s.pipeline.ApproveCurrent(cmd.Context(), stage, opts.sel, approveOpts...)
	} else {
		res, err = s.pipeline.Approve(cmd.Context(), stage, opts.sel, splitList(opts.IDs), approveOpts...)
	}
	if err != nil {
		return s.out.Fail("approve", err)
	}
	st, _ := s.reg.Stage(stage)
	return s.out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "approved %d %s records at %s", len(res.Records), stage, res.Scope.Key())
		if res.Replaced > 0 {
			fmt.Fprintf(w, " (replaced %d)", res.Replaced)
		}
		fmt.Fprintln(w)
		for _, rec := range res.Records {
			mark := " "
			if rec.Top {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %3d  %s\n", mark, rec.Ordinal, st.Label(rec.Payload))
		}
	})
}

func runApproveAll(rootOpts *RootOptions, opts *ApproveOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.pipeline.ApproveAll(cmd.Context(), stage, opts.sel, splitList(opts.Segments))
	if err != nil {
		return s.out.Fail("approve all", err)
	}
	if err := s.out.Success(report, func(w io.Writer) {
		writeBatch(w, "approved", report.Results)
	}); err != nil {
		return err
	}
	if batchErr := report.Err(); batchErr != nil {
		return WrapExitError(exitCodeFor(batchErr), fmt.Sprintf("%d of %d segments failed", len(report.Failed()), len(report.Results)), batchErr)
	}
	return nil
}

func runRevoke(rootOpts *RootOptions, opts *ApproveOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.pipeline.Approval().Revoke(cmd.Context(), stage, opts.sel.Scope())
	if err != nil {
		return s.out.Fail("revoke", err)
	}
	return s.out.Success(map[string]any{"stage": stage, "revoked": n}, func(w io.Writer) {
		fmt.Fprintf(w, "revoked %d %s records\n", n, stage)
	})
}

func writeBatch(w io.Writer, verb string, results []pipeline.ScopeResult) {
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "\u2717 %s: %s\n", res.Scope.Key(), res.Error)
			continue
		}
		fmt.Fprintf(w, "\u2713 %s: %s %d rows\n", res.Scope.Key(), verb, res.Rows)
	}
}
