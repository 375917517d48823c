package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vesselstenosis/pkg/analysis"
	"vesselstenosis/pkg/stenosis"
)

var (
	analyzeThreshold float64
	analyzeScene     string
	analyzeProfiles  string
	analyzeMesh      string
	analyzeClipOut   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <centerlines.yaml>",
	Short: "Detect and grade stenoses on a centerline set",
	Long: `Build the branch tree of a centerline set, detect stenoses on every branch
and print their NASCET degree.

Without --threshold the configured diameter threshold is used; when that is
zero each branch gets a threshold derived from its median diameter.

Examples:
  vesselstenosis analyze lines.yaml
  vesselstenosis analyze lines.yaml --threshold 3.5 --scene scene.yaml
  vesselstenosis analyze lines.yaml --profiles profiles/
  vesselstenosis analyze lines.yaml --mesh vessel.stl --clip-out stenosis.stl`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Float64VarP(&analyzeThreshold, "threshold", "t", 0, "diameter threshold in mm")
	analyzeCmd.Flags().StringVarP(&analyzeScene, "scene", "s", "", "write the worst stenosis of the primary branch to this file")
	analyzeCmd.Flags().StringVar(&analyzeProfiles, "profiles", "", "write radius profile images to this directory")
	analyzeCmd.Flags().StringVar(&analyzeMesh, "mesh", "", "STL surface of the vessel")
	analyzeCmd.Flags().StringVar(&analyzeClipOut, "clip-out", "", "write the surface around the worst stenosis to this STL file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	params := &analysis.Params{
		CenterlineFile: args[0],
		SceneFile:      analyzeScene,
		ProfileDir:     analyzeProfiles,
		MeshFile:       analyzeMesh,
		ClipFile:       analyzeClipOut,
		Threshold:      analyzeThreshold,
		Config:         cfg,
	}

	analyzer := analysis.NewAnalyzer(params, logger)

	start := time.Now()
	if err := analyzer.Process(); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	printSummary(cmd.OutOrStdout(), analyzer.Summary(), cfg.Output.Verbose)
	fmt.Fprintf(cmd.OutOrStdout(), "\nCompleted in %.2f seconds\n", time.Since(start).Seconds())
	return nil
}

func printSummary(w io.Writer, sum analysis.Summary, details bool) {
	fmt.Fprintf(w, "Branches: %d (primary %d)\n", len(sum.Branches), sum.Primary)
	fmt.Fprintf(w, "Stenoses: %d\n", sum.Stenoses)

	if details {
		for _, b := range sum.Branches {
			fmt.Fprintf(w, "\nBranch %d  parent %d  length %.1f mm  threshold %.2f mm\n",
				b.Index, b.Parent, b.Length, b.Threshold)
			for i, rec := range b.Records {
				fmt.Fprintf(w, "  #%d  [%d, %d)  degree %5.1f%%  min %.2f mm  ref %.2f mm  length %.1f mm  color %s\n",
					i, rec.Start, rec.End, rec.Degree, rec.MinDiameter, rec.RefDiameter, rec.Length,
					stenosis.DefaultPalette[rec.ColorSlot%len(stenosis.DefaultPalette)])
			}
		}
	}

	if sum.Worst != nil {
		fmt.Fprintf(w, "\nWorst stenosis on primary branch: %.1f%% over %.1f mm (id %s)\n",
			sum.Worst.Degree, sum.Worst.Length, sum.Worst.ID)
	} else {
		fmt.Fprintln(w, "\nNo stenosis on the primary branch")
	}
}
