package rectify

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// TargetSize is the pixel size of the rectified output.
type TargetSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s TargetSize) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// EstimateSize derives the output size from the quad's edges. The longer of
// each pair of opposite edges wins, which undoes perspective foreshortening.
// A configured fixed size replaces the estimate once the estimate passes the
// bounds check.
func EstimateSize(q geometry.Quad, cfg Config) (TargetSize, error) {
	size := TargetSize{
		Width:  roundDim(math.Max(q.Top(), q.Bottom())),
		Height: roundDim(math.Max(q.Left(), q.Right())),
	}
	if err := checkBounds(size, cfg); err != nil {
		return TargetSize{}, err
	}
	if fixed, ok := cfg.FixedSize(); ok {
		return fixed, nil
	}
	return size, nil
}

func roundDim(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(v))
}

func checkBounds(size TargetSize, cfg Config) error {
	if size.Width < cfg.MinDimension || size.Height < cfg.MinDimension {
		return fmt.Errorf("%w: %s, minimum side is %d", ErrTooSmall, size, cfg.MinDimension)
	}
	if size.Width > cfg.MaxDimension || size.Height > cfg.MaxDimension {
		return fmt.Errorf("%w: %s, maximum side is %d", ErrTooLarge, size, cfg.MaxDimension)
	}
	return nil
}
