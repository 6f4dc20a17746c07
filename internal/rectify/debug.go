package rectify

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/utils"
	"github.com/disintegration/imaging"
)

var (
	overlayColor = color.NRGBA{R: 255, A: 255}
	borderColor  = color.NRGBA{G: 255, A: 255}
)

// dumpDebug writes the source with the ordered quad drawn on it and the
// rectified output framed by a border.
func dumpDebug(dir string, src image.Image, res *Result) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	ts := time.Now().UnixNano()

	overlay := imaging.Clone(src)
	utils.DrawPolygon(overlay, res.Quad[:], overlayColor, 3)
	for i, p := range res.Quad {
		utils.DrawMarker(overlay, p, 6+2*i, overlayColor)
	}
	if err := imaging.Save(overlay, filepath.Join(dir, fmt.Sprintf("rect_overlay_%d.png", ts))); err != nil {
		return err
	}

	out := imaging.Clone(res.Image)
	utils.DrawRect(out, out.Bounds(), borderColor, 1)
	return imaging.Save(out, filepath.Join(dir, fmt.Sprintf("rect_output_%d.png", ts)))
}
