package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/theamorn/foodlens/internal/labels"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Prediction is one ranked class.
type Prediction struct {
	Index      int
	Label      string
	Confidence float32
}

// Predictions converts raw model output into a ranked list. Quantized
// uint8 output is already a probability on the 0-255 scale and is only
// divided by 255; float output gets a numerically stable softmax over
// all classes. The background class (index 0) never appears in the
// result. Ranking is by descending confidence, ties broken by the lower
// class index. n limits the list length; n <= 0 returns every class.
func Predictions(raw *tensor.RawTensor, table *labels.Table, n int) ([]Prediction, error) {
	classCount := raw.Shape().NumElements()
	if classCount != table.Len() {
		return nil, fmt.Errorf("%w: output has %d classes, label table has %d",
			ErrInference, classCount, table.Len())
	}

	var scores []float32
	switch raw.DType() {
	case tensor.Uint8:
		data := raw.AsUint8()
		scores = make([]float32, classCount)
		for i, v := range data {
			scores[i] = float32(v) / 255.0
		}
	case tensor.Float32:
		scores = softmax(raw.AsFloat32())
	default:
		return nil, fmt.Errorf("%w: unsupported output dtype %s", ErrInference, raw.DType())
	}

	out := make([]Prediction, 0, classCount-1)
	for i := labels.Background + 1; i < classCount; i++ {
		out = append(out, Prediction{
			Index:      i,
			Label:      table.Name(i),
			Confidence: scores[i],
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Confidence != out[b].Confidence {
			return out[a].Confidence > out[b].Confidence
		}
		return out[a].Index < out[b].Index
	})

	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// softmax subtracts the max logit before exponentiating so large logits
// cannot overflow.
func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	exps := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		exps[i] = e
		sum += e
	}

	out := make([]float32, len(logits))
	for i, e := range exps {
		out[i] = float32(e / sum)
	}
	return out
}
