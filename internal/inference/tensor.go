// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inference

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// Tensor is a dense NCHW float32 tensor. Pixel values are normalized to [0,1].
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(n, c, h, w int) Tensor {
	return Tensor{Shape: [4]int{n, c, h, w}, Data: make([]float32, n*c*h*w)}
}

// Len is the element count implied by Shape.
func (t Tensor) Len() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// Validate checks that Data matches Shape.
func (t Tensor) Validate() error {
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension in %v", ErrTensorShape, t.Shape)
		}
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("%w: %d elements for shape %v", ErrTensorShape, len(t.Data), t.Shape)
	}
	return nil
}

// Width and Height of an NCHW tensor.
func (t Tensor) Width() int  { return t.Shape[3] }
func (t Tensor) Height() int { return t.Shape[2] }

// ImageToTensor converts img to a 1x3xHxW tensor. Alpha is dropped.
func ImageToTensor(img image.Image) Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := NewTensor(1, 3, h, w)
	plane := w * h

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			t.Data[i] = float32(r) / 0xffff
			t.Data[plane+i] = float32(g) / 0xffff
			t.Data[2*plane+i] = float32(bl) / 0xffff
		}
	}
	return t
}

// TensorToImage converts a 1x3xHxW tensor to an opaque image, clamping to [0,1].
func TensorToImage(t Tensor) (*image.NRGBA, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Shape[0] != 1 || t.Shape[1] != 3 {
		return nil, fmt.Errorf("%w: want 1x3xHxW, got %v", ErrTensorShape, t.Shape)
	}
	w, h := t.Width(), t.Height()
	plane := w * h
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			img.SetNRGBA(x, y, color.NRGBA{
				R: toByte(t.Data[i]),
				G: toByte(t.Data[plane+i]),
				B: toByte(t.Data[2*plane+i]),
				A: 0xff,
			})
		}
	}
	return img, nil
}

func toByte(v float32) uint8 {
	if v != v || v <= 0 { // NaN or negative
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(v*255 + 0.5)
}

// ReadFrame decodes a PNG frame.
func ReadFrame(path string) (image.Image, error) {
	// #nosec G304 - frames live in a job working directory
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// WriteFrame encodes img as PNG at path.
func WriteFrame(path string, img image.Image) error {
	// #nosec G304
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
