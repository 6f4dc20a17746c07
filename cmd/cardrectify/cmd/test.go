package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardrectify/internal/config"
	"github.com/MeKo-Tech/cardrectify/internal/models"
	"github.com/MeKo-Tech/cardrectify/internal/onnx"
)

func (a *app) newTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test ONNX Runtime setup and model availability",
		Long: `Check that the ONNX Runtime library can be found and initialised and that
the corner heatmap model exists. The contour backend needs neither.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			failed := false
			check := func(name string, err error) {
				if err != nil {
					failed = true
					_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
					return
				}
				_, _ = fmt.Fprintf(out, "ok   %s\n", name)
			}

			lib, err := onnx.ResolveLibraryPath(a.cfg.GPU.UseGPU)
			check("onnxruntime library "+lib, err)
			if err == nil {
				check("onnxruntime init", onnx.InitEnvironment(a.cfg.GPU.UseGPU))
			}
			model := a.cfg.ToHeatmapConfig().ModelPath
			check("corner model "+model, models.ValidateModelExists(model))

			if failed {
				if a.cfg.Detector.Backend == config.BackendContour {
					_, _ = fmt.Fprintln(out, "The contour backend works without ONNX Runtime.")
				}
				return fmt.Errorf("setup incomplete")
			}
			_, _ = fmt.Fprintln(out, "All checks passed.")
			return nil
		},
	}
}
