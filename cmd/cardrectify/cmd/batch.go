package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardrectify/internal/batch"
)

func (a *app) newBatchCommand() *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "batch <path...>",
		Short: "Rectify every card image under the given files and directories",
		Long: `Discover images and PDFs under the given paths, rectify them in parallel and
write the results to an output directory. A report is printed as text, JSON
or CSV.

Images embedded in PDFs are extracted with pdfcpu; --pdf-pages limits the
pages considered (e.g. "1-3,5").

Examples:
  cardrectify batch ./scans
  cardrectify batch ./scans --recursive --include "*.jpg" --exclude "*_thumb*"
  cardrectify batch statement.pdf --pdf-pages 1-2 --format json --output-file report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoArgs
			}
			return a.runBatch(cmd, args, failOnError)
		},
	}

	f := cmd.Flags()
	f.BoolP("recursive", "r", false, "process directories recursively")
	f.StringSlice("include", nil, "include only files matching these glob patterns")
	f.StringSlice("exclude", nil, "exclude files matching these glob patterns")
	f.String("pdf-pages", "", "page range for PDFs, e.g. 1-3,5")
	f.String("output-dir", "", "directory for rectified images")
	f.String("image-format", "", "output image format: jpg, png or webp")
	f.Int("quality", 0, "JPEG/WebP quality (1-100)")
	f.StringP("format", "f", "", "report format: text, json or csv")
	f.String("output-file", "", "write the report here instead of stdout")
	f.IntP("workers", "w", 0, "number of parallel workers (0 = CPU count)")
	f.Bool("progress", false, "show a progress bar on stderr")
	f.BoolP("quiet", "q", false, "suppress progress output")
	f.Bool("barcodes", false, "decode barcodes on the rectified cards")
	f.String("backend", "", "detector backend: contour or heatmap")
	f.BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any input fails")

	a.bind(cmd, "batch.recursive", "recursive")
	a.bind(cmd, "batch.include", "include")
	a.bind(cmd, "batch.exclude", "exclude")
	a.bind(cmd, "batch.pdf_pages", "pdf-pages")
	a.bind(cmd, "batch.output_dir", "output-dir")
	a.bind(cmd, "batch.image_format", "image-format")
	a.bind(cmd, "batch.quality", "quality")
	a.bind(cmd, "batch.format", "format")
	a.bind(cmd, "batch.output_file", "output-file")
	a.bind(cmd, "batch.workers", "workers")
	a.bind(cmd, "batch.progress", "progress")
	a.bind(cmd, "batch.quiet", "quiet")
	a.bind(cmd, "batch.barcodes", "barcodes")
	a.bind(cmd, "detector.backend", "backend")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, args []string, failOnError bool) error {
	proc, err := newProcessor(a.cfg, processorOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	bcfg := a.cfg.ToBatchConfig()
	res, err := batch.Run(cmd.Context(), proc, args, bcfg)
	if err != nil {
		if errors.Is(err, batch.ErrNoInputs) {
			return fmt.Errorf("no images or PDFs found under %v", args)
		}
		return err
	}

	report, err := res.FormatResults(bcfg.Format)
	if err != nil {
		return err
	}
	if bcfg.OutputFile != "" {
		if err := os.WriteFile(bcfg.OutputFile, []byte(report), 0o600); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if !bcfg.Quiet {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", bcfg.OutputFile)
		}
	} else if _, err := fmt.Fprint(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	sum := res.Summarize()
	if failOnError && sum.Failed > 0 {
		return &rejectedError{failed: sum.Failed, total: sum.Total}
	}
	return nil
}
