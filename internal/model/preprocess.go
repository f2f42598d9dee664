package model

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
)

// ToRGB drops the alpha channel, keeping each pixel's unpremultiplied colour.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

// Preprocess converts an image into the normalised CHW float tensor the model
// expects: RGB, resized to ImageSize x ImageSize, each channel scaled to [0,1]
// then shifted and scaled by the training mean and std.
func Preprocess(img image.Image, meta Metadata) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	meta.applyDefaults()
	size := uint(meta.ImageSize)

	resized := resize.Resize(size, size, ToRGB(img), resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			i := y*width + x
			data[i] = (float32(r)/65535.0 - meta.Mean[0]) / meta.Std[0]
			data[plane+i] = (float32(g)/65535.0 - meta.Mean[1]) / meta.Std[1]
			data[2*plane+i] = (float32(b)/65535.0 - meta.Mean[2]) / meta.Std[2]
		}
	}
	return data, nil
}

// Softmax returns exp(x_i)/sum(exp(x)) computed with the max subtracted for stability.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
