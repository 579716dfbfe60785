// Package spatial applies homogeneous transforms to points.
package spatial

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Point is a 2D image-plane point in pixels.
type Point struct {
	X float64
	Y float64
}

// TransformPoints applies a (d+1)x(d+1) homogeneous matrix to an N x d matrix of points and
// returns the transformed N x d points, divided by their homogeneous coordinate.
func TransformPoints(h mat.Matrix, points mat.Matrix) (*mat.Dense, error) {
	hr, hc := h.Dims()
	n, d := points.Dims()
	if hr != hc {
		return nil, errors.Errorf("homogeneous matrix must be square, got %dx%d", hr, hc)
	}
	if hr != d+1 {
		return nil, errors.Errorf("homogeneous matrix %dx%d does not match %d-dimensional points", hr, hc, d)
	}
	if n == 0 {
		return &mat.Dense{}, nil
	}

	homogeneous := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			homogeneous.Set(i, j, points.At(i, j))
		}
		homogeneous.Set(i, d, 1)
	}

	var transformed mat.Dense
	transformed.Mul(homogeneous, h.T())

	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		w := transformed.At(i, d)
		if w == 0 {
			return nil, errors.Errorf("point %d maps to infinity", i)
		}
		for j := 0; j < d; j++ {
			out.Set(i, j, transformed.At(i, j)/w)
		}
	}
	return out, nil
}

// TransformPoint applies a homogeneous matrix to a single d-dimensional point.
func TransformPoint(h mat.Matrix, point []float64) ([]float64, error) {
	out, err := TransformPoints(h, mat.NewDense(1, len(point), append([]float64(nil), point...)))
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, out), nil
}

// Identity2D returns the 3x3 identity.
func Identity2D() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// Translation2D returns a translation by (tx, ty).
func Translation2D(tx, ty float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, tx,
		0, 1, ty,
		0, 0, 1,
	})
}

// Scale2D returns an axis-aligned scaling about the origin.
func Scale2D(sx, sy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		sx, 0, 0,
		0, sy, 0,
		0, 0, 1,
	})
}

// Affine2D builds a matrix from the 2x3 affine part [a b tx; c d ty].
func Affine2D(a, b, tx, c, d, ty float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a, b, tx,
		c, d, ty,
		0, 0, 1,
	})
}

// Compose returns the matrix applying the given transforms in order (first argument first).
func Compose(transforms ...mat.Matrix) *mat.Dense {
	out := Identity2D()
	for _, t := range transforms {
		var next mat.Dense
		next.Mul(t, out)
		out = &next
	}
	return out
}

// TransformPoints2D applies a 3x3 homogeneous matrix to image-plane points.
func TransformPoints2D(h mat.Matrix, points []Point) ([]Point, error) {
	if len(points) == 0 {
		return []Point{}, nil
	}
	data := make([]float64, 0, 2*len(points))
	for _, p := range points {
		data = append(data, p.X, p.Y)
	}
	out, err := TransformPoints(h, mat.NewDense(len(points), 2, data))
	if err != nil {
		return nil, err
	}
	result := make([]Point, len(points))
	for i := range result {
		result[i] = Point{X: out.At(i, 0), Y: out.At(i, 1)}
	}
	return result, nil
}
