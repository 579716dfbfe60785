// Package overlay renders annotations on top of an image so transformed datasets can be checked by eye.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"

	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/imageio"
	"github.com/airo-ugent/airo-dataset-tools/pkg/mask"
)

// palette cycles per annotation so neighbouring instances are distinguishable
var palette = []color.RGBA{
	{0, 255, 0, 255},
	{255, 204, 0, 255},
	{0, 170, 255, 255},
	{255, 0, 255, 255},
	{255, 96, 0, 255},
	{0, 255, 204, 255},
}

var (
	visibleColor   = color.RGBA{0, 255, 0, 255}
	invisibleColor = color.RGBA{255, 0, 0, 255}
)

// Draw returns a copy of img with the boxes, segmentation outlines and labeled keypoints of
// annotations drawn on it. Keypoints that are labeled but not visible are drawn in red.
func Draw(img image.Image, annotations []*coco.Annotation) *image.RGBA {
	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	w, h := bounds.Dx(), bounds.Dy()
	stroke := math.Max(1, 0.004*float64(min(w, h)))
	radius := math.Max(2, 0.01*float64(min(w, h)))

	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetLineWidth(stroke)
	for i, ann := range annotations {
		c := palette[i%len(palette)]
		gc.SetStrokeColor(c)

		if ann.Segmentation != nil {
			for _, poly := range outlines(*ann.Segmentation, w, h) {
				if len(poly) < 6 {
					continue
				}
				gc.BeginPath()
				gc.MoveTo(poly[0], poly[1])
				for j := 2; j+1 < len(poly); j += 2 {
					gc.LineTo(poly[j], poly[j+1])
				}
				gc.Close()
				gc.Stroke()
			}
		}

		if ann.BBox != nil && ann.BBox.Width > 0 && ann.BBox.Height > 0 {
			gc.BeginPath()
			draw2dkit.Rectangle(gc, ann.BBox.X, ann.BBox.Y, ann.BBox.X+ann.BBox.Width, ann.BBox.Y+ann.BBox.Height)
			gc.Stroke()
		}

		for _, kp := range ann.Keypoints {
			if !kp.V.Labeled() {
				continue
			}
			fill := visibleColor
			if kp.V == coco.LabeledInvisible {
				fill = invisibleColor
			}
			gc.SetFillColor(fill)
			gc.BeginPath()
			draw2dkit.Circle(gc, kp.X, kp.Y, radius)
			gc.Fill()
		}
	}
	return canvas
}

// outlines returns the polygons to stroke for a segmentation. RLE masks are traced first.
func outlines(seg coco.Segmentation, width, height int) [][]float64 {
	if !seg.IsRLE() {
		return seg.Polygons
	}
	m, err := mask.DecodeRLE(*seg.RLE, width, height)
	if err != nil {
		return nil
	}
	return m.Polygons()
}

// Write draws the annotations on img and saves the result to path.
func Write(img image.Image, annotations []*coco.Annotation, path string) error {
	return imageio.Save(Draw(img, annotations), path, imageio.DefaultSaveOptions())
}
