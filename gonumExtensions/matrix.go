// Package gonumExtensions collects small matrix helpers missing from gonum.
package gonumExtensions

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eye returns the (n by n) identity as a symmetric matrix.
func Eye(n int) *mat.SymDense {
	return ScaledEye(n, 1.)
}

// ScaledEye returns value times the (n by n) identity.
func ScaledEye(n int, value float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, value)
	}
	return m
}

// Diag returns the symmetric matrix with d on its diagonal.
func Diag(d []float64) *mat.SymDense {
	m := mat.NewSymDense(len(d), nil)
	for i, v := range d {
		m.SetSym(i, i, v)
	}
	return m
}

// BlockDiag stacks the symmetric blocks along the diagonal, the off-diagonal
// blocks are zero. Empty blocks are skipped.
func BlockDiag(blocks ...mat.Symmetric) *mat.SymDense {
	n := 0
	for _, b := range blocks {
		if b != nil {
			n += b.SymmetricDim()
		}
	}
	if n == 0 {
		return nil
	}
	res := mat.NewSymDense(n, nil)
	offset := 0
	for _, b := range blocks {
		if b == nil {
			continue
		}
		m := b.SymmetricDim()
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				res.SetSym(offset+i, offset+j, b.At(i, j))
			}
		}
		offset += m
	}
	return res
}

// IsDiagonal reports whether all off-diagonal entries are zero.
func IsDiagonal(m mat.Symmetric) bool {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// NANORINF checks if there are any NaN or Inf in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// HasNaNOrInf is NANORINF for a plain vector.
func HasNaNOrInf(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
