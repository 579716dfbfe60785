package augment

import (
	"fmt"
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/airo-ugent/airo-dataset-tools/pkg/spatial"
)

func frameSize(b *Bundle) (int, int) {
	bounds := b.Image.Bounds()
	return bounds.Dx(), bounds.Dy()
}

// Resize scales the image to exactly Width x Height.
type Resize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Name implements Transform.
func (r *Resize) Name() string { return fmt.Sprintf("resize(%dx%d)", r.Width, r.Height) }

// Apply implements Transform.
func (r *Resize) Apply(b *Bundle, _ *rand.Rand) error {
	if r.Width <= 0 || r.Height <= 0 {
		return errors.Errorf("resize target %dx%d must be positive", r.Width, r.Height)
	}
	return resizeTo(b, r.Width, r.Height)
}

func resizeTo(b *Bundle, width, height int) error {
	w, h := frameSize(b)
	if w == 0 || h == 0 {
		return errors.New("cannot resize an empty image")
	}
	return geometry{
		matrix: spatial.Scale2D(float64(width)/float64(w), float64(height)/float64(h)),
		width:  width,
		height: height,
		image: func(img image.Image) *image.NRGBA {
			return imaging.Resize(img, width, height, imaging.Linear)
		},
		mask: func(img image.Image) *image.NRGBA {
			return imaging.Resize(img, width, height, imaging.NearestNeighbor)
		},
	}.apply(b)
}

// LongestMaxSize rescales the image so that its longest side equals MaxSize, keeping the aspect ratio.
type LongestMaxSize struct {
	MaxSize int `json:"max_size"`
}

// Name implements Transform.
func (l *LongestMaxSize) Name() string { return fmt.Sprintf("longest_max_size(%d)", l.MaxSize) }

// Apply implements Transform.
func (l *LongestMaxSize) Apply(b *Bundle, _ *rand.Rand) error {
	if l.MaxSize <= 0 {
		return errors.Errorf("max_size %d must be positive", l.MaxSize)
	}
	w, h := frameSize(b)
	scale := float64(l.MaxSize) / math.Max(float64(w), float64(h))
	return resizeTo(b, scaled(w, scale), scaled(h, scale))
}

// SmallestMaxSize rescales the image so that its shortest side equals MaxSize, keeping the aspect ratio.
type SmallestMaxSize struct {
	MaxSize int `json:"max_size"`
}

// Name implements Transform.
func (s *SmallestMaxSize) Name() string { return fmt.Sprintf("smallest_max_size(%d)", s.MaxSize) }

// Apply implements Transform.
func (s *SmallestMaxSize) Apply(b *Bundle, _ *rand.Rand) error {
	if s.MaxSize <= 0 {
		return errors.Errorf("max_size %d must be positive", s.MaxSize)
	}
	w, h := frameSize(b)
	scale := float64(s.MaxSize) / math.Min(float64(w), float64(h))
	return resizeTo(b, scaled(w, scale), scaled(h, scale))
}

func scaled(v int, scale float64) int {
	out := int(math.Round(float64(v) * scale))
	if out < 1 {
		return 1
	}
	return out
}

// Crop cuts out the pixel window [XMin, XMax) x [YMin, YMax).
type Crop struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Name implements Transform.
func (c *Crop) Name() string {
	return fmt.Sprintf("crop(%d,%d,%d,%d)", c.XMin, c.YMin, c.XMax, c.YMax)
}

// Apply implements Transform.
func (c *Crop) Apply(b *Bundle, _ *rand.Rand) error {
	return cropTo(b, image.Rect(c.XMin, c.YMin, c.XMax, c.YMax))
}

func cropTo(b *Bundle, rect image.Rectangle) error {
	w, h := frameSize(b)
	if rect.Min.X < 0 || rect.Min.Y < 0 || rect.Max.X > w || rect.Max.Y > h {
		return errors.Errorf("crop window %v exceeds the %dx%d image", rect, w, h)
	}
	if rect.Empty() {
		return errors.Errorf("crop window %v is empty", rect)
	}
	op := func(img image.Image) *image.NRGBA {
		return imaging.Crop(img, rect.Add(img.Bounds().Min))
	}
	return geometry{
		matrix: spatial.Translation2D(-float64(rect.Min.X), -float64(rect.Min.Y)),
		width:  rect.Dx(),
		height: rect.Dy(),
		image:  op,
		mask:   op,
	}.apply(b)
}

// CenterCrop cuts a Width x Height window out of the middle of the image.
type CenterCrop struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Name implements Transform.
func (c *CenterCrop) Name() string { return fmt.Sprintf("center_crop(%dx%d)", c.Width, c.Height) }

// Apply implements Transform.
func (c *CenterCrop) Apply(b *Bundle, _ *rand.Rand) error {
	w, h := frameSize(b)
	if c.Width > w || c.Height > h {
		return errors.Errorf("center crop %dx%d is larger than the %dx%d image", c.Width, c.Height, w, h)
	}
	x0, y0 := (w-c.Width)/2, (h-c.Height)/2
	return cropTo(b, image.Rect(x0, y0, x0+c.Width, y0+c.Height))
}

// RandomCrop cuts a Width x Height window at a random offset.
type RandomCrop struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Name implements Transform.
func (c *RandomCrop) Name() string { return fmt.Sprintf("random_crop(%dx%d)", c.Width, c.Height) }

// Apply implements Transform.
func (c *RandomCrop) Apply(b *Bundle, rng *rand.Rand) error {
	w, h := frameSize(b)
	if c.Width > w || c.Height > h {
		return errors.Errorf("random crop %dx%d is larger than the %dx%d image", c.Width, c.Height, w, h)
	}
	x0, y0 := rng.Intn(w-c.Width+1), rng.Intn(h-c.Height+1)
	return cropTo(b, image.Rect(x0, y0, x0+c.Width, y0+c.Height))
}

// HorizontalFlip mirrors the image left-right with probability P.
type HorizontalFlip struct {
	P float64 `json:"p"`
}

// Name implements Transform.
func (f *HorizontalFlip) Name() string { return fmt.Sprintf("horizontal_flip(p=%g)", f.P) }

// Apply implements Transform.
func (f *HorizontalFlip) Apply(b *Bundle, rng *rand.Rand) error {
	if !sample(rng, f.P) {
		return nil
	}
	w, h := frameSize(b)
	return geometry{
		matrix:   spatial.Affine2D(-1, 0, float64(w), 0, 1, 0),
		points:   spatial.Affine2D(-1, 0, float64(w-1), 0, 1, 0),
		permutes: true,
		width:    w,
		height:   h,
		image:    imaging.FlipH,
		mask:     imaging.FlipH,
	}.apply(b)
}

// VerticalFlip mirrors the image top-bottom with probability P.
type VerticalFlip struct {
	P float64 `json:"p"`
}

// Name implements Transform.
func (f *VerticalFlip) Name() string { return fmt.Sprintf("vertical_flip(p=%g)", f.P) }

// Apply implements Transform.
func (f *VerticalFlip) Apply(b *Bundle, rng *rand.Rand) error {
	if !sample(rng, f.P) {
		return nil
	}
	w, h := frameSize(b)
	return geometry{
		matrix:   spatial.Affine2D(1, 0, 0, 0, -1, float64(h)),
		points:   spatial.Affine2D(1, 0, 0, 0, -1, float64(h-1)),
		permutes: true,
		width:    w,
		height:   h,
		image:    imaging.FlipV,
		mask:     imaging.FlipV,
	}.apply(b)
}

// Rotate90 rotates the image counter-clockwise by K quarter turns with probability P.
// A negative K picks a random number of quarter turns.
type Rotate90 struct {
	K int     `json:"k"`
	P float64 `json:"p"`
}

// Name implements Transform.
func (r *Rotate90) Name() string { return fmt.Sprintf("rotate90(k=%d,p=%g)", r.K, r.P) }

// Apply implements Transform.
func (r *Rotate90) Apply(b *Bundle, rng *rand.Rand) error {
	if !sample(rng, r.P) {
		return nil
	}
	k := r.K
	if k < 0 {
		k = rng.Intn(4)
	}
	for i := 0; i < k%4; i++ {
		w, h := frameSize(b)
		// counter-clockwise on screen: (x, y) -> (y, w - x) in a y-down frame, (y, w-1-x) for pixel indices
		err := geometry{
			matrix:   spatial.Affine2D(0, 1, 0, -1, 0, float64(w)),
			points:   spatial.Affine2D(0, 1, 0, -1, 0, float64(w-1)),
			permutes: true,
			width:    h,
			height:   w,
			image:    imaging.Rotate90,
			mask:     imaging.Rotate90,
		}.apply(b)
		if err != nil {
			return err
		}
	}
	return nil
}

func sample(rng *rand.Rand, p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return rng.Float64() < p
}
