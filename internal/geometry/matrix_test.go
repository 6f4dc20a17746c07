package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix3_Det(t *testing.T) {
	assert.InDelta(t, 1.0, Identity().Det(), 1e-12)
	assert.InDelta(t, 6.0, ScaleMatrix(2, 3).Det(), 1e-12)
	assert.InDelta(t, 0.0, Matrix3{1, 2, 3, 2, 4, 6, 0, 0, 1}.Det(), 1e-12)
}

func TestMatrix3_ApplyTranslateScale(t *testing.T) {
	m := Translate(5, -3).Mul(ScaleMatrix(2, 2))
	x, y, ok := m.Apply(10, 10)
	require.True(t, ok)
	assert.InDelta(t, 25.0, x, 1e-12)
	assert.InDelta(t, 17.0, y, 1e-12)
}

func TestMatrix3_ApplyAtInfinity(t *testing.T) {
	m := Matrix3{1, 0, 0, 0, 1, 0, 1, 0, 0}
	_, _, ok := m.Apply(0, 5)
	assert.False(t, ok)
}

func TestMatrix3_InverseSingular(t *testing.T) {
	_, err := Matrix3{1, 2, 3, 2, 4, 6, 1, 1, 1}.Inverse()
	assert.True(t, errors.Is(err, ErrSingularMatrix))

	_, err = Matrix3{math.NaN(), 0, 0, 0, 1, 0, 0, 0, 1}.Inverse()
	assert.ErrorIs(t, err, ErrSingularMatrix)
}

func TestMatrix3_InverseOfProjective(t *testing.T) {
	m := Matrix3{1.2, 0.1, 30, -0.05, 0.9, 12, 0.0004, -0.0002, 1}
	inv, err := m.Inverse()
	require.NoError(t, err)

	prod := m.Mul(inv).Scale(1 / m.Mul(inv)[8])
	id := Identity()
	for i := range prod {
		assert.InDelta(t, id[i], prod[i], 1e-9, "entry %d", i)
	}
}

func TestMatrix3_IsFinite(t *testing.T) {
	assert.True(t, Identity().IsFinite())
	assert.False(t, Matrix3{0, 0, math.Inf(1)}.IsFinite())
}

// TestMatrix3_InverseRoundTripProperty checks that m^-1(m(p)) == p for
// well-conditioned affine-plus-perspective matrices.
func TestMatrix3_InverseRoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("inverse undoes the transform", prop.ForAll(
		func(a, b, tx, ty, x, y float64) bool {
			m := Matrix3{1 + a, b, tx, -b, 1 + a, ty, 0.0001, 0.0001, 1}
			inv, err := m.Inverse()
			if err != nil {
				return false
			}
			fx, fy, ok := m.Apply(x, y)
			if !ok {
				return true
			}
			bx, by, ok := inv.Apply(fx, fy)
			if !ok {
				return false
			}
			return math.Abs(bx-x) < 1e-6 && math.Abs(by-y) < 1e-6
		},
		gen.Float64Range(-0.3, 0.3),
		gen.Float64Range(-0.3, 0.3),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
		gen.Float64Range(0, 500),
		gen.Float64Range(0, 500),
	))

	properties.TestingRun(t)
}
