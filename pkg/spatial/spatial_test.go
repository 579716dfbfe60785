package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTransformPoints3D(t *testing.T) {
	// rotation of 90 degrees about z followed by a translation of (1, 2, 3)
	h := mat.NewDense(4, 4, []float64{
		0, -1, 0, 1,
		1, 0, 0, 2,
		0, 0, 1, 3,
		0, 0, 0, 1,
	})
	points := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 1, 1,
	})
	out, err := TransformPoints(h, points)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 3, 3}, mat.Row(nil, 0, out), 1e-9)
	assert.InDeltaSlice(t, []float64{0, 2, 4}, mat.Row(nil, 1, out), 1e-9)
}

func TestTransformPointSingle(t *testing.T) {
	p, err := TransformPoint(Translation2D(3, -1), []float64{1, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 0}, p, 1e-9)
}

func TestTransformPointsNormalisesHomogeneousCoordinate(t *testing.T) {
	h := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 2, 0,
		0, 0, 2,
	})
	p, err := TransformPoint(h, []float64{5, 7})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 7}, p, 1e-9)
}

func TestTransformPointsShapeErrors(t *testing.T) {
	_, err := TransformPoints(mat.NewDense(3, 4, nil), mat.NewDense(1, 2, nil))
	assert.Error(t, err)

	_, err = TransformPoints(Identity2D(), mat.NewDense(1, 3, nil))
	assert.Error(t, err)

	_, err = TransformPoint(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 0}), []float64{1, 1})
	assert.Error(t, err)
}

func TestCompose(t *testing.T) {
	// scale first, then translate
	h := Compose(Scale2D(2, 3), Translation2D(1, 1))
	out, err := TransformPoints2D(h, []Point{{1, 1}, {0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 3, out[0].X, 1e-9)
	assert.InDelta(t, 4, out[0].Y, 1e-9)
	assert.InDelta(t, 1, out[1].X, 1e-9)
	assert.InDelta(t, 1, out[1].Y, 1e-9)
}

func TestTransformPoints2DEmpty(t *testing.T) {
	out, err := TransformPoints2D(Identity2D(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
