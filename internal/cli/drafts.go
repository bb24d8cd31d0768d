package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/drafts"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// DraftsOptions holds flags shared by the drafts subcommands.
type DraftsOptions struct {
	selectionFlags
	Fields   string
	Version  int64
	Top      bool
	Segments string
}

func newDraftsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List, generate and edit draft rows",
	}
	cmd.AddCommand(newDraftsListCommand(rootOpts))
	cmd.AddCommand(newDraftsGenerateCommand(rootOpts))
	cmd.AddCommand(newDraftsGenerateAllCommand(rootOpts))
	cmd.AddCommand(newDraftsPatchCommand(rootOpts))
	cmd.AddCommand(newDraftsTopCommand(rootOpts))
	cmd.AddCommand(newDraftsDeleteCommand(rootOpts))
	return cmd
}

func newDraftsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftsOptions{}
	cmd := &cobra.Command{
		Use:   "list <stage>",
		Short: "List the current draft rows of a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsList(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newDraftsGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftsOptions{}
	cmd := &cobra.Command{
		Use:   "generate <stage>",
		Short: "Generate a new draft set from approved upstream content",
		Long: `Generate drafts for a stage at the selected scope. The stage must be
enterable: every upstream stage approved at the narrowed scope. Replace
stages get a fresh draft set; augment stages append to the current one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsGenerate(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newDraftsGenerateAllCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftsOptions{}
	cmd := &cobra.Command{
		Use:   "generate-all <stage>",
		Short: "Generate a segment stage for several segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsGenerateAll(rootOpts, opts, registry.StageID(args[0]), cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Segments, "segments", "", "comma-separated segment ids (default: approved segments)")
	return cmd
}

func newDraftsPatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftsOptions{}
	cmd := &cobra.Command{
		Use:   "patch <stage> <row-id>",
		Short: "Merge JSON fields into a draft row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsPatch(rootOpts, opts, registry.StageID(args[0]), args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Fields, "fields", "", `JSON object of fields to set, e.g. '{"name":"x"}'`)
	cmd.Flags().Int64Var(&opts.Version, "if-version", 0, "fail unless the row is at this version")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func newDraftsTopCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftsOptions{}
	cmd := &cobra.Command{
		Use:   "top <stage> <row-id>",
		Short: "Mark or unmark a ranking row as top",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsTop(rootOpts, opts, registry.StageID(args[0]), args[1], cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Top, "set", true, "top flag value")
	return cmd
}

func newDraftsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stage> <row-id>...",
		Short: "Delete draft rows",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsDelete(rootOpts, registry.StageID(args[0]), args[1:], cmd)
		},
	}
}

func runDraftsList(rootOpts *RootOptions, opts *DraftsOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.pipeline.Drafts().List(cmd.Context(), stage, opts.sel.Scope())
	if err != nil {
		return s.out.Fail("list drafts", err)
	}
	st, _ := s.reg.Stage(stage)
	return s.out.Success(rows, func(w io.Writer) {
		writeRows(w, st, rows)
	})
}

func runDraftsGenerate(rootOpts *RootOptions, opts *DraftsOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.pipeline.Generate(cmd.Context(), stage, opts.sel)
	if err != nil {
		return s.out.Fail("generate", err)
	}
	st, _ := s.reg.Stage(stage)
	return s.out.Success(rows, func(w io.Writer) {
		fmt.Fprintf(w, "generated %d %s rows\n", len(rows), stage)
		writeRows(w, st, rows)
	})
}

func runDraftsGenerateAll(rootOpts *RootOptions, opts *DraftsOptions, stage registry.StageID, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.pipeline.GenerateAll(cmd.Context(), stage, opts.sel, splitList(opts.Segments))
	if err != nil {
		return s.out.Fail("generate all", err)
	}
	if err := s.out.Success(report, func(w io.Writer) {
		writeBatch(w, "generated", report.Results)
	}); err != nil {
		return err
	}
	if batchErr := report.Err(); batchErr != nil {
		return WrapExitError(exitCodeFor(batchErr), fmt.Sprintf("%d of %d segments failed", len(report.Failed()), len(report.Results)), batchErr)
	}
	return nil
}

func runDraftsPatch(rootOpts *RootOptions, opts *DraftsOptions, stage registry.StageID, id string, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	fields, err := ir.UnmarshalIRObject([]byte(opts.Fields))
	if err != nil {
		return s.out.FailWith(ExitCommandError, ErrCodeUsage, "parse --fields", err)
	}
	var patchOpts []drafts.PatchOption
	if opts.Version > 0 {
		patchOpts = append(patchOpts, drafts.IfVersion(opts.Version))
	}
	row, err := s.pipeline.Drafts().Patch(cmd.Context(), stage, id, fields, patchOpts...)
	if err != nil {
		return s.out.Fail("patch draft", err)
	}
	return s.out.Success(row, func(w io.Writer) {
		fmt.Fprintf(w, "patched %s (version %d)\n", row.ID, row.Version)
	})
}

func runDraftsTop(rootOpts *RootOptions, opts *DraftsOptions, stage registry.StageID, id string, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	row, err := s.pipeline.Drafts().SetTop(cmd.Context(), stage, id, opts.Top)
	if err != nil {
		return s.out.Fail("set top", err)
	}
	return s.out.Success(row, func(w io.Writer) {
		fmt.Fprintf(w, "%s top=%s\n", row.ID, strconv.FormatBool(row.Top))
	})
}

func runDraftsDelete(rootOpts *RootOptions, stage registry.StageID, ids []string, cmd *cobra.Command) error {
	s, err := openSession(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := deleteRows(cmd.Context(), s.pipeline.Drafts(), stage, ids); err != nil {
		return s.out.Fail("delete drafts", err)
	}
	return s.out.Success(map[string]any{"stage": stage, "deleted": ids}, func(w io.Writer) {
		fmt.Fprintf(w, "deleted %d %s rows\n", len(ids), stage)
	})
}

func deleteRows(ctx context.Context, d *drafts.Adapter, stage registry.StageID, ids []string) error {
	for _, id := range ids {
		if err := d.Delete(ctx, stage, id); err != nil {
			return err
		}
	}
	return nil
}

func writeRows(w io.Writer, st registry.Stage, rows []ir.DraftRow) {
	for _, row := range rows {
		mark := " "
		if row.Top {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %3d  %-36s  %s\n", mark, row.Ordinal, row.ID, st.Label(row.Payload))
	}
}
