package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/analysis"
	"vesselstenosis/pkg/stl"
)

var (
	clipThreshold float64
	clipBranch    int
	clipRecord    int
	clipLargest   bool
)

var clipCmd = &cobra.Command{
	Use:   "clip <centerlines.yaml> <mesh.stl> <out.stl>",
	Short: "Cut the surface around a stenosis out of a mesh",
	Long: `Analyze a centerline set and write the part of the vessel surface that
surrounds one stenosis.

By default the worst stenosis of the primary branch is clipped.

Examples:
  vesselstenosis clip lines.yaml vessel.stl out.stl
  vesselstenosis clip lines.yaml vessel.stl out.stl --branch 2 --record 0
  vesselstenosis clip lines.yaml vessel.stl out.stl --largest`,
	Args: cobra.ExactArgs(3),
	RunE: runClip,
}

func init() {
	clipCmd.Flags().Float64VarP(&clipThreshold, "threshold", "t", 0, "diameter threshold in mm")
	clipCmd.Flags().IntVarP(&clipBranch, "branch", "b", -1, "branch index (default: primary branch)")
	clipCmd.Flags().IntVarP(&clipRecord, "record", "r", -1, "record index on the branch (default: worst)")
	clipCmd.Flags().BoolVar(&clipLargest, "largest", false, "keep only the largest connected piece")
}

func runClip(cmd *cobra.Command, args []string) error {
	analyzer := analysis.NewAnalyzer(&analysis.Params{
		CenterlineFile: args[0],
		Threshold:      clipThreshold,
		Config:         cfg,
	}, logger)
	if err := analyzer.Process(); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	branch := clipBranch
	if branch < 0 {
		branch = analyzer.Tree().Primary()
	}
	record := clipRecord
	if record < 0 {
		recs, err := analyzer.Records(branch)
		if err != nil {
			return err
		}
		record = worstIndex(recs)
		if record < 0 {
			return fmt.Errorf("branch %d has no stenosis", branch)
		}
	}

	mesh, err := stl.ReadSTL(args[1])
	if err != nil {
		return err
	}

	out, err := analyzer.ClipStenosis(mesh, branch, record, clipLargest || cfg.Clip.LargestComponent)
	if err != nil {
		return err
	}
	if err := stl.SaveToSTL(args[2], out.Triangles); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Clipped %d of %d triangles around branch %d record %d to %s\n",
		out.Len(), mesh.Len(), branch, record, args[2])
	return nil
}

// worstIndex returns the index of the record with the highest degree, -1 for none
func worstIndex(recs []models.StenosisRecord) int {
	worst := -1
	for i, rec := range recs {
		if worst < 0 || rec.Degree > recs[worst].Degree {
			worst = i
		}
	}
	return worst
}
