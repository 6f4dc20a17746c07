package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardrectify/internal/benchmark"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

func (a *app) newBenchmarkCommand() *cobra.Command {
	var (
		iterations int
		outputFile string
	)
	cmd := &cobra.Command{
		Use:   "benchmark <image>",
		Short: "Time each rectification stage on an image",
		Long: `Run detection, corner ordering, size estimation, homography, warping and
the full request repeatedly on one image and report timings and allocations.

Examples:
  cardrectify benchmark photo.jpg
  cardrectify benchmark photo.jpg --iterations 50 --backend heatmap --output bench.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, _, err := utils.LoadImage(args[0])
			if err != nil {
				return err
			}
			proc, err := newProcessor(a.cfg, processorOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = proc.Close() }()

			suite, err := benchmark.NewPipelineSuite(cmd.Context(), proc, img)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Benchmarking %s (%d iterations, %s detector)\n",
				args[0], iterations, a.cfg.Detector.Backend)
			results := suite.RunAll(cmd.Context(), iterations)
			if err := benchmark.WriteText(out, results); err != nil {
				return err
			}
			if outputFile == "" {
				return nil
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			if err := benchmark.WriteCSV(f, results); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Results saved to: %s\n", outputFile)
			return nil
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10, "iterations per stage")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "also write CSV results here")
	cmd.Flags().String("backend", "", "detector backend: contour or heatmap")
	a.bind(cmd, "detector.backend", "backend")
	return cmd
}
