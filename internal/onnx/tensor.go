package onnx

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/cardrectify/internal/mempool"
	"github.com/disintegration/imaging"
)

// Tensor is a row-major float32 tensor. Image tensors are NCHW.
type Tensor struct {
	Data  []float32
	Shape []int64

	pooled bool
}

// Normalization is the per-channel mean and standard deviation applied to
// [0,1] pixel values.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// ImageNet is the normalisation most corner and segmentation backbones are
// trained with.
var ImageNet = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// NewImageTensor wraps NCHW data as a [1, C, H, W] tensor.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if expected := c * h * w; len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// ImageToTensor resizes img to w x h and converts it to a normalised
// [1, 3, h, w] tensor. The data buffer comes from mempool; call Release when
// the tensor is no longer needed.
func ImageToTensor(img image.Image, w, h int, norm Normalization) (Tensor, error) {
	if img == nil {
		return Tensor{}, errors.New("nil image")
	}
	if w <= 0 || h <= 0 {
		return Tensor{}, fmt.Errorf("invalid tensor size %dx%d", w, h)
	}
	resized := imaging.Resize(img, w, h, imaging.Linear)

	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+w*4]
		for x := range w {
			i := y*w + x
			for c := range 3 {
				v := float32(row[x*4+c]) / 255
				data[c*plane+i] = (v - norm.Mean[c]) / norm.Std[c]
			}
		}
	}
	t, err := NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return Tensor{}, err
	}
	t.pooled = true
	return t, nil
}

// Release hands a pooled buffer back. Safe on any tensor.
func (t *Tensor) Release() {
	if t.pooled {
		mempool.PutFloat32(t.Data)
		t.Data = nil
		t.pooled = false
	}
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// VerifyImageTensor checks that the data length matches the NCHW shape.
func VerifyImageTensor(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	if expected := int(n * c * h * w); len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// TensorStats returns min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
