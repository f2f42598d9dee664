package model

import (
	"context"
	"fmt"
	"image"
	"image/color"
)

const checkImageSize = 224

// GradientImage is the patterned image used for the startup self test.
func GradientImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, checkImageSize, checkImageSize))
	for x := 0; x < checkImageSize; x++ {
		for y := 0; y < checkImageSize; y++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x + y) % 256),
				G: uint8((x * y) % 256),
				B: uint8(((x-y)%256 + 256) % 256),
				A: 0xff,
			})
		}
	}
	return img
}

// WhiteImage is the plain image the health check classifies.
func WhiteImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, checkImageSize, checkImageSize))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

// SelfTest classifies GradientImage and checks the result covers the vocabulary.
func SelfTest(ctx context.Context, c Classifier) (Classification, error) {
	return predictAndCheck(ctx, c, GradientImage())
}

// SyntheticCheck is a full end-to-end prediction on WhiteImage. A model that
// loads but cannot run fails here.
func SyntheticCheck(ctx context.Context, c Classifier) error {
	_, err := predictAndCheck(ctx, c, WhiteImage())
	return err
}

func predictAndCheck(ctx context.Context, c Classifier, img image.Image) (Classification, error) {
	result, err := c.Predict(ctx, img)
	if err != nil {
		return nil, err
	}
	for _, label := range c.Labels() {
		if _, ok := result[label]; !ok {
			return nil, fmt.Errorf("prediction is missing label %q", label)
		}
	}
	return result, nil
}
