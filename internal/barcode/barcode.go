// Package barcode decodes the machine-readable codes printed on ID cards
// (QR on health cards, Data Matrix and Code 128 on permits) from a rectified
// card.
package barcode

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Format is a barcode symbology.
type Format string

const (
	FormatQR         Format = "qr"
	FormatDataMatrix Format = "datamatrix"
	FormatAztec      Format = "aztec"
	FormatCode128    Format = "code128"
	FormatCode39     Format = "code39"
)

// AllFormats lists the supported symbologies in the order they are tried.
var AllFormats = []Format{FormatQR, FormatDataMatrix, FormatAztec, FormatCode128, FormatCode39}

// Result is one decoded symbol.
type Result struct {
	Format Format           `json:"format"`
	Value  string           `json:"value"`
	Points []geometry.Point `json:"points,omitempty"`
}

// Options controls decoding.
type Options struct {
	Formats   []Format // empty means AllFormats
	TryHarder bool
}

// ParseFormats parses format names, accepting a few common spellings.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	for _, n := range names {
		switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(n)), "_", "") {
		case "":
			continue
		case "qr", "qrcode":
			out = append(out, FormatQR)
		case "datamatrix", "dm":
			out = append(out, FormatDataMatrix)
		case "aztec":
			out = append(out, FormatAztec)
		case "code128":
			out = append(out, FormatCode128)
		case "code39":
			out = append(out, FormatCode39)
		default:
			return nil, fmt.Errorf("unknown barcode format %q", n)
		}
	}
	return out, nil
}

// Decoder tries each configured symbology on an image. It is safe for
// concurrent use; readers are created per call.
type Decoder struct {
	formats []Format
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewDecoder returns a decoder for opts.
func NewDecoder(opts Options) *Decoder {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = AllFormats
	}
	hints := map[gozxing.DecodeHintType]interface{}{}
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &Decoder{formats: formats, hints: hints}
}

// Formats returns the symbologies the decoder tries.
func (d *Decoder) Formats() []Format { return append([]Format(nil), d.formats...) }

func newReader(f Format) gozxing.Reader {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader()
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader()
	case FormatAztec:
		return aztec.NewAztecReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	}
	return nil
}

// Decode returns every symbol found, at most one per format. Finding nothing
// is not an error.
func (d *Decoder) Decode(ctx context.Context, img image.Image) ([]Result, error) {
	if img == nil {
		return nil, fmt.Errorf("barcode: nil image")
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("barcode: prepare bitmap: %w", err)
	}

	var out []Result
	for _, f := range d.formats {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r := newReader(f)
		if r == nil {
			continue
		}
		res, err := r.Decode(bmp, d.hints)
		if err != nil || res == nil {
			continue
		}
		out = append(out, toResult(f, res))
	}
	slog.Debug("barcode decode finished", "found", len(out), "formats", len(d.formats))
	return out, nil
}

func toResult(f Format, r *gozxing.Result) Result {
	pts := r.GetResultPoints()
	res := Result{Format: f, Value: r.GetText()}
	if len(pts) > 0 {
		res.Points = make([]geometry.Point, 0, len(pts))
		for _, p := range pts {
			res.Points = append(res.Points, geometry.Pt(p.GetX(), p.GetY()))
		}
	}
	return res
}
