package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

type rectifyOptions struct {
	corners    string
	confidence float64
	out        string
	format     string
	quality    int
	save       bool
	jsonOut    bool
}

// rectifyReport is one line of rectify output.
type rectifyReport struct {
	Input      string           `json:"input"`
	Output     string           `json:"output,omitempty"`
	Saved      string           `json:"saved,omitempty"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Backend    string           `json:"backend,omitempty"`
	Quad       *geometry.Quad   `json:"quad,omitempty"`
	Barcodes   []barcode.Result `json:"barcodes,omitempty"`
	Error      string           `json:"error,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Message    string           `json:"message,omitempty"`
}

func (a *app) newRectifyCommand() *cobra.Command {
	var o rectifyOptions

	cmd := &cobra.Command{
		Use:   "rectify <image...>",
		Short: "Rectify card photos into upright images",
		Long: `Detect the card in each image and warp it into an upright rectangle.

Corners can be given explicitly with --corners, in which case no detector
runs. The order of the four points does not matter.

Supported input formats: JPEG, PNG, BMP, GIF, TIFF, WebP

Examples:
  cardrectify rectify photo.jpg
  cardrectify rectify photo.jpg --out card.png --card-size
  cardrectify rectify photo.jpg --corners 40,30,279,30,259,178,60,178
  cardrectify rectify *.jpg --out rectified/ --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRectify(cmd, args, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.corners, "corners", "", "card corners as x1,y1,x2,y2,x3,y3,x4,y4 (skips detection)")
	f.Float64Var(&o.confidence, "confidence", 1, "confidence reported for --corners")
	f.StringVarP(&o.out, "out", "o", "", "output file, or directory for several inputs (default: next to the input)")
	f.StringVar(&o.format, "image-format", "jpg", "output image format when --out is not a file: jpg, png or webp")
	f.IntVar(&o.quality, "quality", utils.StoreQuality, "JPEG/WebP quality (1-100)")
	f.BoolVar(&o.save, "save", false, "also keep the result in the result store")
	f.BoolVar(&o.jsonOut, "json", false, "print one JSON object per image")

	f.String("backend", "", "detector backend: contour or heatmap")
	f.String("model", "", "override the corner heatmap model path")
	f.Bool("lite", false, "use the lite heatmap model")
	f.Float64("min-confidence", 0, "reject detections below this confidence (0..1)")
	f.Bool("card-size", false, "force ID-1 output size (860x540)")
	f.String("background", "", "fill colour for areas outside the photo")
	f.String("interpolation", "", "bilinear or nearest")
	f.Bool("barcodes", false, "decode barcodes on the rectified card")
	f.String("debug-dir", "", "write overlay and output PNGs here")
	a.bind(cmd, "detector.backend", "backend")
	a.bind(cmd, "detector.model_path", "model")
	a.bind(cmd, "detector.lite", "lite")
	a.bind(cmd, "rectify.confidence_threshold", "min-confidence")
	a.bind(cmd, "rectify.card_size", "card-size")
	a.bind(cmd, "rectify.background", "background")
	a.bind(cmd, "rectify.interpolation", "interpolation")
	a.bind(cmd, "barcode.enabled", "barcodes")
	a.bind(cmd, "rectify.debug_dir", "debug-dir")
	return cmd
}

func (a *app) runRectify(cmd *cobra.Command, args []string, o rectifyOptions) error {
	format, err := utils.ParseFormat(o.format)
	if err != nil {
		return err
	}
	if o.quality < 1 || o.quality > 100 {
		return fmt.Errorf("invalid quality: %d (must be between 1 and 100)", o.quality)
	}

	popts := processorOptions{withStore: o.save}
	if o.corners != "" {
		pts, err := detector.ParseCorners(o.corners)
		if err != nil {
			return err
		}
		popts.detector = detector.NewStatic(pts, o.confidence)
	}
	proc, err := newProcessor(a.cfg, popts)
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	outIsFile := len(args) == 1 && o.out != "" && utils.IsSupportedImage(o.out)
	out := cmd.OutOrStdout()
	failed := 0
	for _, in := range args {
		target := outputPath(in, o.out, outIsFile, format)
		r := a.rectifyOne(cmd, proc, in, target, o)
		if r.Error != "" {
			failed++
		}
		if err := writeReport(out, r, o.jsonOut); err != nil {
			return err
		}
	}
	if failed > 0 {
		return &rejectedError{failed: failed, total: len(args)}
	}
	return nil
}

func (a *app) rectifyOne(cmd *cobra.Command, proc *pipeline.Processor, in, target string, o rectifyOptions) rectifyReport {
	r := rectifyReport{Input: in}
	fail := func(err error, kind string) rectifyReport {
		r.Error = err.Error()
		r.Kind = kind
		r.Message = rectify.UserMessage(err)
		return r
	}

	img, _, err := utils.LoadImage(in)
	if err != nil {
		return fail(err, "load")
	}
	outcome, err := proc.Process(cmd.Context(), pipeline.Request{
		Image:    img,
		Barcodes: a.cfg.Barcode.Enabled,
		Save:     o.save,
	})
	if err != nil {
		return fail(err, rectify.KindName(err))
	}

	q := outcome.Rectified.Quad
	r.Quad = &q
	r.Width = outcome.Rectified.Size.Width
	r.Height = outcome.Rectified.Size.Height
	r.Confidence = outcome.Detection.Confidence
	r.Backend = outcome.Detection.Backend
	r.Barcodes = outcome.Barcodes
	if outcome.Saved != nil {
		r.Saved = outcome.Saved.Name
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fail(err, "save")
		}
	}
	if err := utils.SaveImage(outcome.Rectified.Image, target, o.quality); err != nil {
		return fail(err, "save")
	}
	r.Output = target
	return r
}

// outputPath picks where the result for in goes: the --out file itself, a
// file inside the --out directory, or a sibling of the input.
func outputPath(in, out string, outIsFile bool, f utils.Format) string {
	if outIsFile {
		return out
	}
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + "_rectified" + f.Ext()
	if out != "" {
		return filepath.Join(out, base)
	}
	return filepath.Join(filepath.Dir(in), base)
}

func writeReport(w io.Writer, r rectifyReport, asJSON bool) error {
	if asJSON {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	var err error
	if r.Error != "" {
		_, err = fmt.Fprintf(w, "%s: rejected (%s): %s\n", r.Input, r.Kind, r.Message)
		return err
	}
	_, err = fmt.Fprintf(w, "%s -> %s (%dx%d, confidence %.2f, %s)\n",
		r.Input, r.Output, r.Width, r.Height, r.Confidence, r.Backend)
	if err != nil {
		return err
	}
	if r.Saved != "" {
		if _, err := fmt.Fprintf(w, "  saved as %s\n", r.Saved); err != nil {
			return err
		}
	}
	for _, bc := range r.Barcodes {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", bc.Format, bc.Value); err != nil {
			return err
		}
	}
	return nil
}

var errNoArgs = errors.New("no input paths provided")
