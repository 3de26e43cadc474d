package coboost

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrentMinimize(t *testing.T) {
	// simple parabola
	got := brentMinimize(func(s float64) float64 { return (s - 2) * (s - 2) }, 0, 100, 500)
	assert.InDelta(t, 2.0, got, 1e-6)

	// minimum at the boundary
	got = brentMinimize(func(s float64) float64 { return s }, 0, 100, 500)
	assert.InDelta(t, 0.0, got, 1e-4)
}

func TestFindOptimalStepSize(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	n := 50
	y := make([]float64, n)
	f := make([]float64, n)
	b := make([]float64, n)

	for i := 0; i < n; i++ {
		y[i] = rng.NormFloat64()
		f[i] = rng.NormFloat64() * 0.1
		b[i] = rng.NormFloat64()
	}

	// quadratic loss has the closed-form optimum sum(b*(y-f)) / sum(b*b)
	num, den := 0.0, 0.0
	for i := 0; i < n; i++ {
		num += b[i] * (y[i] - f[i])
		den += b[i] * b[i]
	}

	want := num / den
	if want < 0 {
		want = 0
	}

	got := findOptimalStepSize(NewQuadraticLoss(), y, f, b)
	assert.InDelta(t, want, got, 1e-3)
}
