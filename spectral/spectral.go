// Package spectral wraps the real FFT of gonum and provides the packed
// real-valued "r" representation of Hermitian spectra.
//
// For a sequence of length N the half spectrum holds N/2+1 complex
// coefficients. The r representation stores it in N reals:
//
//	r[0]          = c[0]         (DC, real)
//	r[2k-1], r[2k] = Re c[k], Im c[k]   for 1 <= k <= (N-1)/2
//	r[N-1]        = c[N/2]       (Nyquist, real, only when N is even)
//
// Synthesis (RToComplex then Inverse) and analysis (InverseAdjoint then
// RToComplexAdjoint) are exact adjoints for the Euclidean inner products of
// the r space and of the physical space.
package spectral

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Transform holds the FFT plan of a given length.
type Transform struct {
	n   int
	fft *fourier.FFT
}

// NewTransform returns a transform for sequences of length n.
func NewTransform(n int) *Transform {
	return &Transform{n: n, fft: fourier.NewFFT(n)}
}

// Len returns the sequence length.
func (t *Transform) Len() int { return t.n }

// Pairs returns the number of conjugate-symmetric frequency pairs.
func (t *Transform) Pairs() int { return (t.n - 1) / 2 }

// hasNyquist reports whether the spectrum has a lone Nyquist coefficient.
func (t *Transform) hasNyquist() bool { return t.n%2 == 0 }

// Forward returns the unnormalized half spectrum
//
//	c[k] = sum_j x[j] exp(-2 pi i j k / N),  k = 0..N/2.
func (t *Transform) Forward(x []float64) []complex128 {
	return t.fft.Coefficients(nil, x)
}

// Inverse returns the real sequence of the Hermitian spectrum whose half is c,
// normalized by 1/N so that Inverse(Forward(x)) == x.
func (t *Transform) Inverse(c []complex128) []float64 {
	x := t.fft.Sequence(nil, c)
	scale := 1 / float64(t.n)
	for i := range x {
		x[i] *= scale
	}
	return x
}

// InverseAdjoint is the forward transform scaled by 1/N. Combined with
// RToComplexAdjoint it gives the transpose of the r synthesis.
func (t *Transform) InverseAdjoint(x []float64) []complex128 {
	c := t.Forward(x)
	scale := complex(1/float64(t.n), 0)
	for k := range c {
		c[k] *= scale
	}
	return c
}

// RToComplex unpacks an r vector into a half spectrum.
func (t *Transform) RToComplex(r []float64) []complex128 {
	c := make([]complex128, t.n/2+1)
	c[0] = complex(r[0], 0)
	for k := 1; k <= t.Pairs(); k++ {
		c[k] = complex(r[2*k-1], r[2*k])
	}
	if t.hasNyquist() {
		c[t.n/2] = complex(r[t.n-1], 0)
	}
	return c
}

// RToComplexAdjoint is the adjoint of RToComplex followed by Inverse, given
// the output of InverseAdjoint. Each conjugate pair contributes twice to the
// real sequence, hence the factor 2.
func (t *Transform) RToComplexAdjoint(c []complex128) []float64 {
	r := make([]float64, t.n)
	r[0] = real(c[0])
	for k := 1; k <= t.Pairs(); k++ {
		r[2*k-1] = 2 * real(c[k])
		r[2*k] = 2 * imag(c[k])
	}
	if t.hasNyquist() {
		r[t.n-1] = real(c[t.n/2])
	}
	return r
}

// ComplexToR packs a half spectrum into an r vector, dropping the imaginary
// parts of the DC and Nyquist coefficients.
func (t *Transform) ComplexToR(c []complex128) []float64 {
	r := make([]float64, t.n)
	r[0] = real(c[0])
	for k := 1; k <= t.Pairs(); k++ {
		r[2*k-1] = real(c[k])
		r[2*k] = imag(c[k])
	}
	if t.hasNyquist() {
		r[t.n-1] = real(c[t.n/2])
	}
	return r
}

// Synthesize maps an r vector to physical space.
func (t *Transform) Synthesize(r []float64) []float64 {
	return t.Inverse(t.RToComplex(r))
}

// SynthesizeAdjoint is the transpose of Synthesize.
func (t *Transform) SynthesizeAdjoint(x []float64) []float64 {
	return t.RToComplexAdjoint(t.InverseAdjoint(x))
}

// Truncate removes every wavenumber above ntrc. It is an orthogonal
// projection, hence self-adjoint.
func (t *Transform) Truncate(x []float64, ntrc int) []float64 {
	c := t.Forward(x)
	for k := ntrc + 1; k < len(c); k++ {
		c[k] = 0
	}
	return t.Inverse(c)
}

// TruncationWavenumber keeps the lowest third of the resolved wavenumbers,
// the usual dealiasing limit for quadratic nonlinearities.
func TruncationWavenumber(n int) int {
	return (n - 1) / 3
}
