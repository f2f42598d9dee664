package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hairClasses = []string{"curly", "kinky", "straight", "wavy"}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeBase64Image(t *testing.T) {
	plain := pngBase64(t, 4, 3)

	tests := []struct {
		name  string
		input string
	}{
		{"plain", plain},
		{"data uri", "data:image/png;base64," + plain},
		{"wrapped lines", plain[:10] + "\n" + plain[10:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := DecodeBase64Image(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, 4, img.Bounds().Dx())
			assert.Equal(t, 3, img.Bounds().Dy())
		})
	}
}

func TestDecodeBase64Image_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"empty after prefix", "data:image/png;base64,"},
		{"not base64", "!!!not-base64!!!"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello world, definitely not a png"))},
		{"truncated png", pngBase64(t, 8, 8)[:40]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeBase64Image(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestToRGB_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(2, 2, 4, 4))
	src.SetNRGBA(2, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 0})

	out := ToRGB(src)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, out.NRGBAAt(0, 0))
}

func TestPreprocess_ShapeAndNormalisation(t *testing.T) {
	meta := Metadata{Classes: hairClasses, ImageSize: 8}

	data, err := Preprocess(WhiteImage(), meta)
	require.NoError(t, err)
	require.Len(t, data, 3*8*8)

	plane := 64
	for c := 0; c < 3; c++ {
		want := (1 - imageNetMean[c]) / imageNetStd[c]
		for _, v := range data[c*plane : (c+1)*plane] {
			assert.InDelta(t, want, v, 1e-3)
		}
	}
}

func TestPreprocess_EmptyImage(t *testing.T) {
	_, err := Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)), Metadata{Classes: hairClasses})
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	out := Softmax([]float32{1, 2, 3, 1000})
	var sum float32
	for _, v := range out {
		assert.False(t, math.IsNaN(float64(v)))
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.InDelta(t, 1.0, out[3], 1e-5)
	assert.Empty(t, Softmax(nil))
}

func TestToClassification(t *testing.T) {
	meta := Metadata{Classes: hairClasses, Softmax: true}
	c := toClassification(meta, []float32{0, 0, 0, 0})

	require.Len(t, c, len(hairClasses))
	for _, label := range hairClasses {
		assert.InDelta(t, 0.25, c[label], 1e-6)
	}
}

func TestClassificationTop(t *testing.T) {
	c := Classification{"curly": 0.1, "kinky": 0.2, "straight": 0.6, "wavy": 0.1}

	top := c.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, "straight", top[0].Label)
	assert.Equal(t, "kinky", top[1].Label)
	assert.Equal(t, "curly", top[2].Label)

	assert.Len(t, c.Top(-1), 4)
	assert.Len(t, c.Top(10), 4)
}

func TestReadMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"classes":["curly","kinky","straight","wavy"]}`), 0o644))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 224, meta.ImageSize)
	assert.Equal(t, []int64{1, 3, 224, 224}, meta.InputShape)
	assert.Equal(t, []int64{1, 4}, meta.OutputShape)
	assert.Equal(t, "input", meta.InputName)
	assert.Equal(t, imageNetStd, meta.Std)

	require.NoError(t, os.WriteFile(path, []byte(`{"classes":[]}`), 0o644))
	_, err = ReadMetadata(path)
	assert.Error(t, err)
}

func TestNewServer_MissingModel(t *testing.T) {
	_, err := NewServer(filepath.Join(t.TempDir(), "missing.onnx"), "unused.json", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

type stubClassifier struct {
	labels []string
	result Classification
	err    error
}

func (s *stubClassifier) Predict(context.Context, image.Image) (Classification, error) {
	return s.result, s.err
}
func (s *stubClassifier) Labels() []string { return s.labels }
func (s *stubClassifier) Path() string     { return "stub.onnx" }
func (s *stubClassifier) Loaded() bool     { return true }

func TestSyntheticCheck(t *testing.T) {
	ok := &stubClassifier{labels: hairClasses, result: Classification{"curly": 0.1, "kinky": 0.2, "straight": 0.3, "wavy": 0.4}}
	assert.NoError(t, SyntheticCheck(context.Background(), ok))

	missing := &stubClassifier{labels: hairClasses, result: Classification{"curly": 1}}
	assert.Error(t, SyntheticCheck(context.Background(), missing))

	broken := &stubClassifier{labels: hairClasses, err: errors.New("session crashed")}
	assert.Error(t, SyntheticCheck(context.Background(), broken))

	res, err := SelfTest(context.Background(), ok)
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("file not found")
	u := &Unavailable{ModelPath: "/models/x.onnx", Err: cause}

	_, err := u.Predict(context.Background(), WhiteImage())
	assert.ErrorIs(t, err, cause)
	assert.False(t, u.Loaded())
	assert.Equal(t, "/models/x.onnx", u.Path())
}

func TestGradientImage(t *testing.T) {
	img := GradientImage().(*image.NRGBA)
	assert.Equal(t, color.NRGBA{R: 3, G: 2, B: 255, A: 255}, img.NRGBAAt(1, 2))
}
