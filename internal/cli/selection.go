package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/pipeline"
)

// selectionFlags binds --project, --segment, --pain and --lang.
type selectionFlags struct {
	sel pipeline.Selection
}

func (f *selectionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sel.ProjectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&f.sel.SegmentID, "segment", "", "segment id")
	cmd.Flags().StringVar(&f.sel.PainID, "pain", "", "pain id")
	cmd.Flags().StringVar(&f.sel.Language, "lang", "", "display language (default: native)")
	_ = cmd.MarkFlagRequired("project")
}

// splitList turns "a,b, c" into [a b c], dropping blanks.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
