// Package mask converts COCO segmentations to dense binary bitmaps and back.
//
// Polygons are rasterised at pixel centres: pixel (x, y) belongs to a polygon when the point
// (x+0.5, y+0.5) lies inside it. Polygons traced from a bitmap run along pixel edges, so a
// bitmap -> polygons -> bitmap round trip reproduces the input exactly.
package mask

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
)

// Bitmap is a binary mask stored row-major.
type Bitmap struct {
	Width  int
	Height int
	Pix    []bool
}

// New returns an empty mask of the given size.
func New(width, height int) *Bitmap {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Bitmap{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At reports whether pixel (x, y) is set. Out of range pixels are unset.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Pix[y*b.Width+x]
}

// Set sets or clears pixel (x, y).
func (b *Bitmap) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	b.Pix[y*b.Width+x] = v
}

// Area counts the set pixels.
func (b *Bitmap) Area() int {
	n := 0
	for _, v := range b.Pix {
		if v {
			n++
		}
	}
	return n
}

// Equal reports whether both masks have the same size and pixels.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b.Width != o.Width || b.Height != o.Height {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// ToImage renders the mask as a grayscale image (255 = set).
func (b *Bitmap) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Pix[y*b.Width+x] {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

// FromImage thresholds an image at half intensity.
func FromImage(img image.Image) *Bitmap {
	bounds := img.Bounds()
	b := New(bounds.Dx(), bounds.Dy())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			g := color.GrayModel.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray)
			b.Pix[y*b.Width+x] = g.Y >= 128
		}
	}
	return b
}

// FromSegmentation decodes a polygon list or RLE into a mask of width x height.
func FromSegmentation(seg coco.Segmentation, width, height int) (*Bitmap, error) {
	if seg.RLE != nil {
		return DecodeRLE(*seg.RLE, width, height)
	}
	return FromPolygons(seg.Polygons, width, height), nil
}

// ToSegmentation encodes a mask as polygons. Masks with holes cannot be expressed as a union of
// polygons, so those are stored as RLE instead.
func ToSegmentation(b *Bitmap) coco.Segmentation {
	polygons, holes := b.contours()
	if holes {
		rle := b.RLE()
		return coco.Segmentation{RLE: &rle}
	}
	return coco.Segmentation{Polygons: polygons}
}

// RLE encodes the mask in COCO column-major run lengths, starting with a run of zeros.
func (b *Bitmap) RLE() coco.RLE {
	rle := coco.RLE{Size: [2]int{b.Height, b.Width}, Counts: []uint32{}}
	current := false
	var run uint32
	for x := 0; x < b.Width; x++ {
		for y := 0; y < b.Height; y++ {
			if b.Pix[y*b.Width+x] != current {
				rle.Counts = append(rle.Counts, run)
				run = 0
				current = !current
			}
			run++
		}
	}
	rle.Counts = append(rle.Counts, run)
	return rle
}

// DecodeRLE expands COCO run lengths into a mask. The RLE size must match width x height.
func DecodeRLE(rle coco.RLE, width, height int) (*Bitmap, error) {
	if rle.Size[0] != height || rle.Size[1] != width {
		return nil, errors.Errorf("rle size %dx%d does not match image size %dx%d",
			rle.Size[1], rle.Size[0], width, height)
	}
	b := New(width, height)
	total := width * height
	pos := 0
	value := false
	for _, count := range rle.Counts {
		if pos+int(count) > total {
			return nil, errors.Errorf("rle counts cover more than %d pixels", total)
		}
		if value {
			for i := pos; i < pos+int(count); i++ {
				x, y := i/height, i%height
				b.Pix[y*width+x] = true
			}
		}
		pos += int(count)
		value = !value
	}
	return b, nil
}
