package cpu

import (
	"fmt"

	"github.com/theamorn/foodlens/internal/parallel"
	"github.com/theamorn/foodlens/internal/tensor"
)

// MatMul performs matrix multiplication: (M, K) @ (K, N) -> (M, N).
// Rows of the result are computed in parallel on the worker pool.
func (b *Backend) MatMul(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	aShape := a.Shape()
	bShape := other.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		return nil, fmt.Errorf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape))
	}
	if a.DType() != tensor.Float32 || other.DType() != tensor.Float32 {
		return nil, fmt.Errorf("matmul: unsupported dtypes %s, %s", a.DType(), other.DType())
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		return nil, fmt.Errorf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n)
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}

	matmulFloat32(result.AsFloat32(), a.AsFloat32(), other.AsFloat32(), m, k, n, b.cfg)
	return result, nil
}

// matmulFloat32 computes C[i,j] = sum_k A[i,k] * B[k,j], one output row
// per work item.
func matmulFloat32(c, a, b []float32, m, k, n int, cfg parallel.Config) {
	rowCfg := cfg
	rowCfg.MinChunkSize = 1
	parallel.For(m, func(i int) {
		aRow := a[i*k : (i+1)*k]
		cRow := c[i*n : (i+1)*n]
		for j := range cRow {
			cRow[j] = 0
		}
		for kIdx := 0; kIdx < k; kIdx++ {
			av := aRow[kIdx]
			if av == 0 {
				continue
			}
			bRow := b[kIdx*n : (kIdx+1)*n]
			for j, bv := range bRow {
				cRow[j] += av * bv
			}
		}
	}, rowCfg)
}
