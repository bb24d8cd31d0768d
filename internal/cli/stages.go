package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/compiler"
	"github.com/roach88/canvaspipe/internal/registry"
)

// StageInfo is the JSON form of one registry entry.
type StageInfo struct {
	ID            registry.StageID   `json:"id"`
	Shape         string             `json:"shape"`
	Upstream      []registry.StageID `json:"upstream"`
	Downstream    []registry.StageID `json:"downstream"`
	Insert        string             `json:"insert"`
	Ranking       bool               `json:"ranking,omitempty"`
	LabelKey      string             `json:"label"`
	DraftStore    string             `json:"draft_store"`
	ApprovedStore string             `json:"approved_store"`
}

// StagesValidation is the result of stages validate.
type StagesValidation struct {
	Valid  bool   `json:"valid"`
	Source string `json:"source"`
	Stages int    `json:"stages"`
	Field  string `json:"field,omitempty"`
	Line   int    `json:"line,omitempty"`
}

func newStagesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Inspect the stage table",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stages in pipeline order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStagesList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [stages.cue]",
		Short: "Compile and validate a CUE stage table",
		Long: `Compile a CUE stage table and validate it as a registry: every upstream
must exist, no stage may depend on a narrower-scoped stage and the
upstream graph must be acyclic. Without an argument the configured
table (or the built-in one) is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runStagesValidate(rootOpts, path, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "graph",
		Short: "Print upstream edges in topological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStagesGraph(rootOpts, cmd)
		},
	})
	return cmd
}

func configuredRegistry(rootOpts *RootOptions, out *OutputFormatter) (*registry.Registry, error) {
	cfg, err := resolveConfig(rootOpts)
	if err != nil {
		return nil, out.FailWith(ExitCommandError, ErrCodeConfig, "load config", err)
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, out.FailWith(ExitCommandError, ErrCodeStages, "load stages", err)
	}
	return reg, nil
}

func runStagesList(rootOpts *RootOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	reg, err := configuredRegistry(rootOpts, out)
	if err != nil {
		return err
	}

	infos := make([]StageInfo, 0, len(reg.Stages()))
	for _, st := range reg.Stages() {
		infos = append(infos, StageInfo{
			ID:            st.ID,
			Shape:         string(st.Shape),
			Upstream:      nonNil(st.Upstream),
			Downstream:    nonNil(reg.Downstream(st.ID)),
			Insert:        string(st.Insert),
			Ranking:       st.Ranking,
			LabelKey:      st.LabelKey,
			DraftStore:    st.DraftStore,
			ApprovedStore: st.ApprovedStore,
		})
	}
	return out.Success(infos, func(w io.Writer) {
		for _, info := range infos {
			flags := string(info.Insert)
			if info.Ranking {
				flags += ",ranking"
			}
			fmt.Fprintf(w, "%-22s %-8s %-16s <- %s\n", info.ID, info.Shape, flags, joinIDs(info.Upstream))
		}
	})
}

func runStagesValidate(rootOpts *RootOptions, path string, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	source := path
	if source == "" {
		cfg, err := resolveConfig(rootOpts)
		if err != nil {
			return out.FailWith(ExitCommandError, ErrCodeConfig, "load config", err)
		}
		source = cfg.StagesFile
	}

	var reg *registry.Registry
	var err error
	if source == "" {
		source = "built-in"
		reg, err = registry.New(registry.DefaultStages()...)
	} else {
		out.VerboseLog("compiling %s", source)
		reg, err = compiler.LoadRegistry(source)
	}
	if err != nil {
		result := StagesValidation{Source: source}
		var cErr *compiler.CompileError
		if errors.As(err, &cErr) {
			result.Field = cErr.Field
			if cErr.Pos.IsValid() {
				result.Line = cErr.Pos.Line()
			}
		}
		if out.Format == "json" {
			enc := json.NewEncoder(out.Writer)
			enc.SetIndent("", "  ")
			_ = enc.Encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: ErrCodeStages, Message: err.Error()},
			})
		} else {
			fmt.Fprintf(out.Writer, "\u2717 %s: %v\n", source, err)
		}
		return WrapExitError(ExitFailure, "stage table invalid", err)
	}

	result := StagesValidation{Valid: true, Source: source, Stages: len(reg.Stages())}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "\u2713 %s: %d stages valid\n", source, result.Stages)
	})
}

func runStagesGraph(rootOpts *RootOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	reg, err := configuredRegistry(rootOpts, out)
	if err != nil {
		return err
	}

	type edge struct {
		From registry.StageID `json:"from"`
		To   registry.StageID `json:"to"`
	}
	order := reg.TopoOrder()
	edges := []edge{}
	for _, id := range order {
		st, _ := reg.Stage(id)
		for _, up := range st.Upstream {
			edges = append(edges, edge{From: up, To: id})
		}
	}
	data := map[string]any{"order": order, "edges": edges}
	return out.Success(data, func(w io.Writer) {
		for _, e := range edges {
			fmt.Fprintf(w, "%s -> %s\n", e.From, e.To)
		}
	})
}

func nonNil(ids []registry.StageID) []registry.StageID {
	if ids == nil {
		return []registry.StageID{}
	}
	return ids
}

func joinIDs(ids []registry.StageID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
