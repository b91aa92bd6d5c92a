package classify

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theamorn/foodlens/internal/backend/webgpu"
	"github.com/theamorn/foodlens/internal/labels"
	"github.com/theamorn/foodlens/internal/model"
	"github.com/theamorn/foodlens/internal/tensor"
)

// biasModel builds a model whose output equals its dense bias: flatten
// into a zero-weight dense layer, so every input produces the same
// logits.
func biasModel(outType model.DTypeCode, bias []float32) []byte {
	const size = 4
	inFeatures := size * size * 3
	classCount := len(bias)
	return model.Encode(model.Spec{
		InputSize:  size,
		ClassCount: classCount,
		InputType:  model.DTypeFloat32,
		OutputType: outType,
		Mean:       0,
		Std:        1,
		Layers: []model.LayerSpec{
			{Kind: model.LayerFlatten},
			{
				Kind:        model.LayerDense,
				OutFeatures: classCount,
				InFeatures:  inFeatures,
				Weights:     make([]float32, classCount*inFeatures),
				Bias:        bias,
			},
		},
	})
}

func labelCSV(names ...string) *strings.Reader {
	var b strings.Builder
	b.WriteString("index,name\n")
	for i, n := range names {
		fmt.Fprintf(&b, "%d,%s\n", i, n)
	}
	return strings.NewReader(b.String())
}

func tableFor(t *testing.T, names ...string) *labels.Table {
	t.Helper()
	tbl, err := labels.Parse(labelCSV(names...), len(names))
	require.NoError(t, err)
	return tbl
}

func flatInput(t *testing.T, size int) *tensor.RawTensor {
	t.Helper()
	in, err := tensor.FromFloat32(make([]float32, size*size*3), tensor.Shape{1, size, size, 3})
	require.NoError(t, err)
	return in
}

func TestLoadMetadata(t *testing.T) {
	h, err := Load(biasModel(model.DTypeFloat32, []float32{0, 1, 2}),
		labelCSV("background", "pad thai", "green curry"), Config{})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, KindCPU, h.Effective())
	assert.Equal(t, 4, h.InputSize())
	assert.Equal(t, 3, h.Labels().Len())
	assert.False(t, h.OutputQuantized())
}

func TestLoadBadModel(t *testing.T) {
	_, err := Load([]byte("not a model"), labelCSV("a"), Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestLoadBadLabels(t *testing.T) {
	src := strings.NewReader("index,name\nnope,apple\n")
	_, err := Load(biasModel(model.DTypeFloat32, []float32{0, 1}), src, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestAcceleratorRequestNeverFails(t *testing.T) {
	h, err := Load(biasModel(model.DTypeFloat32, []float32{0, 1, 2}),
		labelCSV("background", "a", "b"), Config{Kind: KindAccelerator})
	require.NoError(t, err)
	defer h.Close()

	if !webgpu.Supported() {
		assert.Equal(t, KindCPU, h.Effective())
	}

	out, err := h.Run(flatInput(t, h.InputSize()))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Shape().NumElements())
}

func TestRunAfterClose(t *testing.T) {
	h, err := Load(biasModel(model.DTypeFloat32, []float32{0, 1}),
		labelCSV("background", "a"), Config{})
	require.NoError(t, err)

	h.Close()
	h.Close() // idempotent

	_, err = h.Run(flatInput(t, h.InputSize()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
}

func TestRunShapeMismatch(t *testing.T) {
	h, err := Load(biasModel(model.DTypeFloat32, []float32{0, 1}),
		labelCSV("background", "a"), Config{})
	require.NoError(t, err)
	defer h.Close()

	bad, err := tensor.FromFloat32(make([]float32, 2*2*3), tensor.Shape{1, 2, 2, 3})
	require.NoError(t, err)

	_, err = h.Run(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
}

func TestPredictionsQuantized(t *testing.T) {
	tbl := tableFor(t, "background", "apple", "banana", "cherry")
	raw, err := tensor.FromUint8([]byte{10, 200, 30, 15}, tensor.Shape{1, 4})
	require.NoError(t, err)

	preds, err := Predictions(raw, tbl, 0)
	require.NoError(t, err)
	require.Len(t, preds, 3)

	assert.Equal(t, 1, preds[0].Index)
	assert.Equal(t, "apple", preds[0].Label)
	assert.InDelta(t, 200.0/255.0, preds[0].Confidence, 1e-6)
	assert.Equal(t, 2, preds[1].Index)
	assert.Equal(t, 3, preds[2].Index)
}

func TestPredictionsExcludeBackground(t *testing.T) {
	tbl := tableFor(t, "background", "apple", "banana")

	// Quantized path: background holds the highest score but never ranks.
	raw, err := tensor.FromUint8([]byte{255, 10, 20}, tensor.Shape{1, 3})
	require.NoError(t, err)
	preds, err := Predictions(raw, tbl, 0)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 2, preds[0].Index)

	// Float path: same property.
	fraw, err := tensor.FromFloat32([]float32{9, 1, 2}, tensor.Shape{1, 3})
	require.NoError(t, err)
	preds, err = Predictions(fraw, tbl, 0)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 2, preds[0].Index)
}

func TestPredictionsSoftmax(t *testing.T) {
	names := make([]string, 10)
	names[0] = "background"
	for i := 1; i < 10; i++ {
		names[i] = fmt.Sprintf("class %d", i)
	}
	tbl := tableFor(t, names...)

	logits := []float32{0, 5, 1, 1, 1, 1, 1, 1, 1, 1}
	raw, err := tensor.FromFloat32(logits, tensor.Shape{1, 10})
	require.NoError(t, err)

	preds, err := Predictions(raw, tbl, 0)
	require.NoError(t, err)
	require.Len(t, preds, 9)

	// p(1) = e^5 / (e^0 + e^5 + 8*e^1)
	want := math.Exp(5) / (1 + math.Exp(5) + 8*math.E)
	assert.Equal(t, 1, preds[0].Index)
	assert.InDelta(t, want, float64(preds[0].Confidence), 1e-4)

	var sum float64
	for _, p := range preds {
		sum += float64(p.Confidence)
	}
	assert.Less(t, sum, 1.0+1e-6)
}

func TestPredictionsSoftmaxShiftInvariant(t *testing.T) {
	tbl := tableFor(t, "background", "a", "b", "c")

	base := []float32{0, 2, -1, 3}
	shifted := []float32{1000, 1002, 999, 1003}

	rawA, err := tensor.FromFloat32(base, tensor.Shape{1, 4})
	require.NoError(t, err)
	rawB, err := tensor.FromFloat32(shifted, tensor.Shape{1, 4})
	require.NoError(t, err)

	predsA, err := Predictions(rawA, tbl, 0)
	require.NoError(t, err)
	predsB, err := Predictions(rawB, tbl, 0)
	require.NoError(t, err)

	require.Len(t, predsB, len(predsA))
	for i := range predsA {
		assert.Equal(t, predsA[i].Index, predsB[i].Index)
		assert.InDelta(t, predsA[i].Confidence, predsB[i].Confidence, 1e-5)
	}
}

func TestPredictionsTieBreak(t *testing.T) {
	tbl := tableFor(t, "background", "a", "b", "c")
	raw, err := tensor.FromUint8([]byte{0, 80, 120, 120}, tensor.Shape{1, 4})
	require.NoError(t, err)

	preds, err := Predictions(raw, tbl, 0)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, 2, preds[0].Index)
	assert.Equal(t, 3, preds[1].Index)
	assert.Equal(t, 1, preds[2].Index)
}

func TestPredictionsTopN(t *testing.T) {
	tbl := tableFor(t, "background", "a", "b", "c", "d")
	raw, err := tensor.FromUint8([]byte{0, 40, 30, 20, 10}, tensor.Shape{1, 5})
	require.NoError(t, err)

	preds, err := Predictions(raw, tbl, 2)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 1, preds[0].Index)
	assert.Equal(t, 2, preds[1].Index)
}

func TestPredictionsSizeMismatch(t *testing.T) {
	tbl := tableFor(t, "background", "a")
	raw, err := tensor.FromUint8([]byte{0, 1, 2}, tensor.Shape{1, 3})
	require.NoError(t, err)

	_, err = Predictions(raw, tbl, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
}

func TestClassifyImage(t *testing.T) {
	h, err := Load(biasModel(model.DTypeFloat32, []float32{0, 3, 1}),
		labelCSV("background", "pad thai", "green curry"), Config{})
	require.NoError(t, err)
	defer h.Close()

	img := image.NewRGBA(image.Rect(0, 0, 10, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	preds, err := ClassifyImage(h, img, 0)
	require.NoError(t, err)
	require.Len(t, preds, 2)

	// Zero weights mean the logits equal the bias regardless of pixels.
	assert.Equal(t, "pad thai", preds[0].Label)
	want := math.Exp(3) / (1 + math.Exp(3) + math.E)
	assert.InDelta(t, want, float64(preds[0].Confidence), 1e-4)
}

func TestClassifyImageNil(t *testing.T) {
	h, err := Load(biasModel(model.DTypeFloat32, []float32{0, 1}),
		labelCSV("background", "a"), Config{})
	require.NoError(t, err)
	defer h.Close()

	_, err = ClassifyImage(h, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
}
