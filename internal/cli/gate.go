package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/gate"
	"github.com/roach88/canvaspipe/internal/registry"
)

// GateOptions holds flags for the gate subcommands.
type GateOptions struct {
	selectionFlags
	Segments string
}

func newGateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Check which stages are enterable",
	}

	canEnter := &GateOptions{}
	canEnterCmd := &cobra.Command{
		Use:   "can-enter <stage>",
		Short: "Report whether a stage's upstream is approved at the selected scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateCanEnter(rootOpts, canEnter, registry.StageID(args[0]), cmd)
		},
	}
	canEnter.bind(canEnterCmd)
	cmd.AddCommand(canEnterCmd)

	progress := &GateOptions{}
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Summarize approved and current stages per segment and pain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateProgress(rootOpts, progress, cmd)
		},
	}
	progress.bind(progressCmd)
	progressCmd.Flags().StringVar(&progress.Segments, "segments", "", "comma-separated segment ids (default: approved segments)")
	cmd.AddCommand(progressCmd)

	return cmd
}

func runGateCanEnter(rootOpts *RootOptions, opts *GateOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.reg.Stage(stage)
	if err != nil {
		return s.out.Fail("can enter", err)
	}
	d, err := s.pipeline.Gate().CanEnter(cmd.Context(), stage, opts.sel.Scope().Narrow(st.Shape))
	if err != nil {
		return s.out.Fail("can enter", err)
	}
	if err := s.out.Success(d, func(w io.Writer) {
		if d.Allowed {
			fmt.Fprintf(w, "%s: enterable\n", stage)
			return
		}
		fmt.Fprintf(w, "%s: blocked by %s at %s\n", stage, d.BlockingStage, d.Scope.Key())
	}); err != nil {
		return err
	}
	if !d.Allowed {
		return WrapExitError(ExitFailure, "stage blocked", d.Err())
	}
	return nil
}

func runGateProgress(rootOpts *RootOptions, opts *GateOptions, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	segments := splitList(opts.Segments)
	if len(segments) == 0 && opts.sel.SegmentID != "" {
		segments = []string{opts.sel.SegmentID}
	}
	progress, err := s.pipeline.Progress(cmd.Context(), opts.sel.ProjectID, segments)
	if err != nil {
		return s.out.Fail("progress", err)
	}
	return s.out.Success(progress, func(w io.Writer) {
		writeProgress(w, progress)
	})
}

func writeProgress(w io.Writer, progress []gate.SegmentProgress) {
	if len(progress) == 0 {
		fmt.Fprintln(w, "no segments")
		return
	}
	for _, seg := range progress {
		fmt.Fprintf(w, "segment %s\n", seg.SegmentID)
		fmt.Fprintf(w, "  approved: %s\n", joinIDs(seg.Approved))
		fmt.Fprintf(w, "  current:  %s\n", orDone(seg.CurrentStage))
		for _, pain := range seg.Pains {
			fmt.Fprintf(w, "  pain %s %q\n", pain.PainID, pain.Label)
			fmt.Fprintf(w, "    approved: %s\n", joinIDs(pain.Approved))
			fmt.Fprintf(w, "    current:  %s\n", orDone(pain.CurrentStage))
		}
	}
}

func orDone(id registry.StageID) string {
	if id == "" {
		return "done"
	}
	return string(id)
}
