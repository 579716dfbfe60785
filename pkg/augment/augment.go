// Package augment implements geometric image transforms that are applied consistently to an
// image and to the keypoints, boxes and masks that annotate it.
package augment

import (
	"image"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/mask"
	"github.com/airo-ugent/airo-dataset-tools/pkg/spatial"
)

// Bundle is everything a transform acts on for one image. Boxes and Masks keep their length and
// order through every transform; keypoints are never dropped, even when they leave the frame.
type Bundle struct {
	Image     *image.NRGBA
	Keypoints []spatial.Point
	Boxes     []coco.BoundingBox
	Masks     []*mask.Bitmap
}

// Transform is a single geometric operation. Random parameters are sampled once per Apply call and
// shared by the image and all annotations.
type Transform interface {
	Name() string
	Apply(b *Bundle, rng *rand.Rand) error
}

// Pipeline applies transforms in order.
type Pipeline struct {
	transforms []Transform
}

// NewPipeline creates a pipeline from transforms.
func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{transforms: transforms}
}

// Names lists the transforms in application order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.transforms))
	for i, t := range p.transforms {
		names[i] = t.Name()
	}
	return names
}

// Len is the number of transforms.
func (p *Pipeline) Len() int {
	return len(p.transforms)
}

// Apply runs every transform on a copy of b. The input slices are not modified.
func (p *Pipeline) Apply(b Bundle, rng *rand.Rand) (Bundle, error) {
	if b.Image == nil {
		return Bundle{}, errors.New("bundle has no image")
	}
	out := Bundle{
		Image:     b.Image,
		Keypoints: append([]spatial.Point(nil), b.Keypoints...),
		Boxes:     append([]coco.BoundingBox(nil), b.Boxes...),
		Masks:     append([]*mask.Bitmap(nil), b.Masks...),
	}
	for _, t := range p.transforms {
		if err := t.Apply(&out, rng); err != nil {
			return Bundle{}, errors.Wrapf(err, "transform %s", t.Name())
		}
	}
	if len(out.Keypoints) != len(b.Keypoints) || len(out.Boxes) != len(b.Boxes) || len(out.Masks) != len(b.Masks) {
		return Bundle{}, errors.Errorf("transforms changed batch sizes: keypoints %d->%d, boxes %d->%d, masks %d->%d",
			len(b.Keypoints), len(out.Keypoints), len(b.Boxes), len(out.Boxes), len(b.Masks), len(out.Masks))
	}
	return out, nil
}

// geometry is one sampled geometric operation: a homogeneous matrix for coordinates, the size of
// the output frame and the matching raster operations for the image and for masks.
//
// matrix works on the continuous frame, where pixel (x, y) covers [x, x+1) x [y, y+1); boxes use
// it. points, when set, is the matrix for keypoints. Flips and quarter turns map keypoints as pixel
// indices (x -> w-1-x) the way the image pixels move, and set permutes so that keypoints inside the
// input frame always stay inside the output frame.
type geometry struct {
	matrix        *mat.Dense
	points        *mat.Dense
	permutes      bool
	width, height int
	image         func(image.Image) *image.NRGBA
	mask          func(image.Image) *image.NRGBA
}

func (g geometry) apply(b *Bundle) error {
	inW, inH := frameSize(b)
	b.Image = g.image(b.Image)
	if got := b.Image.Bounds(); got.Dx() != g.width || got.Dy() != g.height {
		return errors.Errorf("image is %dx%d after transform, expected %dx%d", got.Dx(), got.Dy(), g.width, g.height)
	}

	if len(b.Keypoints) > 0 {
		m := g.points
		if m == nil {
			m = g.matrix
		}
		kps, err := spatial.TransformPoints2D(m, b.Keypoints)
		if err != nil {
			return err
		}
		if g.permutes {
			for i, p := range b.Keypoints {
				if inFrame(p, inW, inH) {
					// a point in the last pixel but past its index lands just below zero
					kps[i].X = math.Max(kps[i].X, 0)
					kps[i].Y = math.Max(kps[i].Y, 0)
				}
			}
		}
		b.Keypoints = kps
	}

	for i, box := range b.Boxes {
		moved, err := g.box(box)
		if err != nil {
			return err
		}
		b.Boxes[i] = moved
	}

	for i, m := range b.Masks {
		b.Masks[i] = mask.FromImage(g.mask(m.ToImage()))
	}
	return nil
}

// box maps the four corners, takes their axis-aligned hull and clips it to the output frame.
func (g geometry) box(box coco.BoundingBox) (coco.BoundingBox, error) {
	corners, err := spatial.TransformPoints2D(g.matrix, []spatial.Point{
		{X: box.X, Y: box.Y},
		{X: box.X + box.Width, Y: box.Y},
		{X: box.X, Y: box.Y + box.Height},
		{X: box.X + box.Width, Y: box.Y + box.Height},
	})
	if err != nil {
		return coco.BoundingBox{}, err
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x0, x1 = math.Min(x0, c.X), math.Max(x1, c.X)
		y0, y1 = math.Min(y0, c.Y), math.Max(y1, c.Y)
	}
	x0, x1 = clamp(x0, 0, float64(g.width)), clamp(x1, 0, float64(g.width))
	y0, y1 = clamp(y0, 0, float64(g.height)), clamp(y1, 0, float64(g.height))
	return coco.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, nil
}

func inFrame(p spatial.Point, width, height int) bool {
	return p.X >= 0 && p.X < float64(width) && p.Y >= 0 && p.Y < float64(height)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
