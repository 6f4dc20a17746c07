package onnx

import (
	"image"
	"image/color"
	"testing"
)

func TestNewImageTensorAndVerify(t *testing.T) {
	c, h, w := 3, 4, 5
	ten, err := NewImageTensor(make([]float32, c*h*w), c, h, w)
	if err != nil {
		t.Fatalf("NewImageTensor error: %v", err)
	}
	if err := VerifyImageTensor(ten); err != nil {
		t.Fatalf("VerifyImageTensor: %v", err)
	}
}

func TestNewImageTensorErrors(t *testing.T) {
	tests := []struct {
		name string
		data []float32
	}{
		{"nil data", nil},
		{"data too short", make([]float32, 10)},
		{"data too long", make([]float32, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewImageTensor(tt.data, 3, 4, 5); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateNCHW(t *testing.T) {
	if err := ValidateNCHW([]int64{1, 3, 8, 8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, shape := range [][]int64{{1, 3, 8}, {1, 0, 8, 8}, {1, 3, -1, 8}} {
		if err := ValidateNCHW(shape); err == nil {
			t.Fatalf("expected error for %v", shape)
		}
	}
	bad := Tensor{Data: make([]float32, 5), Shape: []int64{1, 1, 2, 2}}
	if err := VerifyImageTensor(bad); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestImageToTensor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}
	norm := Normalization{Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{0.5, 0.5, 0.5}}

	ten, err := ImageToTensor(img, 4, 2, norm)
	if err != nil {
		t.Fatalf("ImageToTensor: %v", err)
	}
	defer ten.Release()

	want := []int64{1, 3, 2, 4}
	for i := range want {
		if ten.Shape[i] != want[i] {
			t.Fatalf("shape %v, want %v", ten.Shape, want)
		}
	}
	plane := 8
	if got := ten.Data[0]; got < 0.99 || got > 1.01 {
		t.Errorf("red plane = %v, want 1", got)
	}
	if got := ten.Data[plane]; got < -1.01 || got > -0.99 {
		t.Errorf("green plane = %v, want -1", got)
	}
	if got := ten.Data[2*plane]; got < -0.01 || got > 0.01 {
		t.Errorf("blue plane = %v, want ~0", got)
	}
}

func TestImageToTensorErrors(t *testing.T) {
	if _, err := ImageToTensor(nil, 4, 4, ImageNet); err == nil {
		t.Fatal("expected error for nil image")
	}
	if _, err := ImageToTensor(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 0, 4, ImageNet); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ten, err := ImageToTensor(image.NewNRGBA(image.Rect(0, 0, 4, 4)), 4, 4, ImageNet)
	if err != nil {
		t.Fatal(err)
	}
	ten.Release()
	ten.Release()
	if ten.Data != nil {
		t.Fatal("data should be dropped after release")
	}
	plain := Tensor{Data: []float32{1}}
	plain.Release()
	if plain.Data == nil {
		t.Fatal("non-pooled data must be kept")
	}
}

func TestTensorStats(t *testing.T) {
	lo, hi, mean := TensorStats([]float32{-1, 0, 4})
	if lo != -1 || hi != 4 || mean != 1 {
		t.Fatalf("got %v %v %v", lo, hi, mean)
	}
	if lo, hi, mean := TensorStats(nil); lo != 0 || hi != 0 || mean != 0 {
		t.Fatal("empty stats should be zero")
	}
}
