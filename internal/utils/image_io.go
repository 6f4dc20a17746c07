package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Default JPEG qualities for stored files and inline responses.
const (
	StoreQuality  = 98
	InlineQuality = 95
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ParseFormat maps a name or extension ("jpg", ".png", "webp") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "jpg", "jpeg", "":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Ext returns the canonical file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}

// MIME returns the media type for f.
func (f Format) MIME() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path      string
	SizeBytes int64
	Width     int
	Height    int
}

// LoadImage opens and decodes an image file. EXIF orientation is applied so
// phone photos come out upright.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		err := fmt.Errorf("unsupported format: %s", filepath.Ext(path))
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: err}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: reading user-provided image path is expected
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: err}
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, ImageMetadata{}, err
	}

	b := img.Bounds()
	return img, ImageMetadata{Path: path, SizeBytes: int64(len(data)), Width: b.Dx(), Height: b.Dy()}, nil
}

// DecodeImage decodes any registered format, falling back to the libwebp
// decoder for WebP variants the pure-Go decoder rejects.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &ImageProcessingError{Operation: "decode", Err: errors.New("empty input")}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}
	return nil, &ImageProcessingError{Operation: "decode", Err: err}
}

// EncodeImage writes img to w in the given format. quality applies to JPEG
// and lossy WebP.
func EncodeImage(w io.Writer, img image.Image, f Format, quality int) error {
	var err error
	switch f {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	return nil
}

// SaveImage writes img to path, choosing the encoder from the extension.
func SaveImage(img image.Image, path string, quality int) error {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return &ImageProcessingError{Operation: "save", Err: err}
	}
	switch f {
	case FormatWebP:
		var buf bytes.Buffer
		if err := EncodeImage(&buf, img, f, quality); err != nil {
			return err
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
			return &ImageProcessingError{Operation: "save", Err: err}
		}
		return nil
	default:
		if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
			return &ImageProcessingError{Operation: "save", Err: err}
		}
		return nil
	}
}

// FitWithin scales img down so its longer side is at most maxSide. It
// returns the scaled image and the factor from scaled to original pixels.
func FitWithin(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img, 1
	}
	var out *image.NRGBA
	if w >= h {
		out = imaging.Resize(img, maxSide, 0, imaging.Lanczos)
	} else {
		out = imaging.Resize(img, 0, maxSide, imaging.Lanczos)
	}
	return out, float64(w) / float64(out.Bounds().Dx())
}
