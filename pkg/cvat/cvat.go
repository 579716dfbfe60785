// Package cvat converts "CVAT for images 1.1" XML exports into COCO keypoint datasets.
package cvat

import (
	"encoding/xml"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/mask"
)

// Annotations is the root element of a CVAT export.
type Annotations struct {
	XMLName xml.Name `xml:"annotations"`
	Version string   `xml:"version"`
	Labels  []Label  `xml:"meta>task>labels>label"`
	Images  []Image  `xml:"image"`
}

// Label is a label declared by the task. Type is empty in older exports.
type Label struct {
	Name string `xml:"name"`
	Type string `xml:"type"`
}

// Image holds the shapes drawn on one image.
type Image struct {
	ID       int64   `xml:"id,attr"`
	Name     string  `xml:"name,attr"`
	Width    int     `xml:"width,attr"`
	Height   int     `xml:"height,attr"`
	Points   []Shape `xml:"points"`
	Boxes    []Box   `xml:"box"`
	Polygons []Shape `xml:"polygon"`
}

// Shape is a points or polygon element. Points is a "x0,y0;x1,y1" list.
type Shape struct {
	Label    string `xml:"label,attr"`
	Occluded int    `xml:"occluded,attr"`
	GroupID  string `xml:"group_id,attr"`
	Points   string `xml:"points,attr"`
}

// Box is a rectangle given by its top-left and bottom-right corners.
type Box struct {
	Label    string  `xml:"label,attr"`
	Occluded int     `xml:"occluded,attr"`
	GroupID  string  `xml:"group_id,attr"`
	XTL      float64 `xml:"xtl,attr"`
	YTL      float64 `xml:"ytl,attr"`
	XBR      float64 `xml:"xbr,attr"`
	YBR      float64 `xml:"ybr,attr"`
}

// Options controls the conversion.
type Options struct {
	Category        string
	Supercategory   string
	AddBBox         bool
	AddSegmentation bool
}

// Parse decodes a CVAT XML export.
func Parse(r io.Reader) (*Annotations, error) {
	var a Annotations
	if err := xml.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "failed to decode CVAT XML")
	}
	return &a, nil
}

// Convert reads the CVAT export at path and converts it.
func Convert(path string, opts Options) (*coco.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CVAT export")
	}
	defer f.Close()

	a, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return ToCOCO(a, opts)
}

// KeypointNames returns the keypoint labels in declaration order: labels of type "points", or,
// when the export declares no label types, every label used by a points element.
func (a *Annotations) KeypointNames() []string {
	var names []string
	typed := false
	for _, l := range a.Labels {
		if l.Type != "" {
			typed = true
		}
		if l.Type == "points" {
			names = append(names, l.Name)
		}
	}
	if typed {
		return names
	}

	used := make(map[string]bool)
	for _, img := range a.Images {
		for _, p := range img.Points {
			used[p.Label] = true
		}
	}
	for _, l := range a.Labels {
		if used[l.Name] {
			names = append(names, l.Name)
		}
	}
	return names
}

// instance collects the shapes sharing a group id on one image.
type instance struct {
	keypoints coco.Keypoints
	box       *coco.BoundingBox
	polygons  [][]float64
}

// ToCOCO converts the export into a dataset with a single keypoint category. Each group of shapes
// becomes one annotation; shapes without a group id form a single instance per image.
func ToCOCO(a *Annotations, opts Options) (*coco.Dataset, error) {
	if opts.Category == "" {
		return nil, errors.New("no category name given")
	}
	names := a.KeypointNames()
	if len(names) == 0 {
		return nil, errors.New("CVAT export declares no keypoint labels")
	}
	slot := make(map[string]int, len(names))
	for i, name := range names {
		slot[name] = i
	}

	ds := &coco.Dataset{
		Categories: []coco.Category{{
			ID:            1,
			Name:          opts.Category,
			Supercategory: opts.Supercategory,
			Keypoints:     names,
		}},
		Images:      make([]*coco.Image, 0, len(a.Images)),
		Annotations: []*coco.Annotation{},
	}

	var nextID int64 = 1
	for _, img := range a.Images {
		ds.Images = append(ds.Images, &coco.Image{
			ID:       img.ID,
			FileName: img.Name,
			Width:    img.Width,
			Height:   img.Height,
		})

		var order []string
		instances := make(map[string]*instance)
		get := func(group string) *instance {
			inst, ok := instances[group]
			if !ok {
				inst = &instance{keypoints: make(coco.Keypoints, len(names))}
				instances[group] = inst
				order = append(order, group)
			}
			return inst
		}

		for _, p := range img.Points {
			i, ok := slot[p.Label]
			if !ok {
				continue
			}
			coords, err := parsePoints(p.Points)
			if err != nil {
				return nil, errors.Wrapf(err, "image %s, label %s", img.Name, p.Label)
			}
			if len(coords) < 2 {
				return nil, errors.Errorf("image %s, label %s: empty points", img.Name, p.Label)
			}
			v := coco.LabeledVisible
			if p.Occluded == 1 {
				v = coco.LabeledInvisible
			}
			get(p.GroupID).keypoints[i] = coco.Keypoint{X: coords[0], Y: coords[1], V: v}
		}
		if opts.AddBBox {
			for _, b := range img.Boxes {
				get(b.GroupID).box = &coco.BoundingBox{X: b.XTL, Y: b.YTL, Width: b.XBR - b.XTL, Height: b.YBR - b.YTL}
			}
		}
		if opts.AddSegmentation || opts.AddBBox {
			for _, p := range img.Polygons {
				coords, err := parsePoints(p.Points)
				if err != nil {
					return nil, errors.Wrapf(err, "image %s, polygon %s", img.Name, p.Label)
				}
				inst := get(p.GroupID)
				inst.polygons = append(inst.polygons, coords)
			}
		}

		for _, group := range order {
			inst := instances[group]
			labeled := inst.keypoints.NumLabeled()
			ann := &coco.Annotation{
				ID:           nextID,
				ImageID:      img.ID,
				CategoryID:   1,
				Keypoints:    inst.keypoints,
				NumKeypoints: &labeled,
			}
			nextID++

			if opts.AddSegmentation {
				polygons := inst.polygons
				if polygons == nil {
					polygons = [][]float64{}
				}
				ann.Segmentation = &coco.Segmentation{Polygons: polygons}
				ann.Area = float64(mask.FromPolygons(polygons, img.Width, img.Height).Area())
			}
			if opts.AddBBox {
				box := inst.box
				if box == nil {
					box = hull(inst)
				}
				ann.BBox = box
				if !opts.AddSegmentation {
					ann.Area = box.Area()
				}
			}
			ds.Annotations = append(ds.Annotations, ann)
		}
	}
	return ds, nil
}

// parsePoints parses "x0,y0;x1,y1;..." into a flat coordinate list.
func parsePoints(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{}, nil
	}
	pairs := strings.Split(s, ";")
	coords := make([]float64, 0, 2*len(pairs))
	for _, pair := range pairs {
		xs, ys, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, errors.Errorf("malformed point %q", pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed point %q", pair)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed point %q", pair)
		}
		coords = append(coords, x, y)
	}
	return coords, nil
}

// hull is the tight axis-aligned box around the labeled keypoints and polygon vertices of an
// instance. An instance without either gets an empty box at the origin.
func hull(inst *instance) *coco.BoundingBox {
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	extend := func(x, y float64) {
		x0, x1 = math.Min(x0, x), math.Max(x1, x)
		y0, y1 = math.Min(y0, y), math.Max(y1, y)
	}
	for _, kp := range inst.keypoints {
		if kp.V.Labeled() {
			extend(kp.X, kp.Y)
		}
	}
	for _, poly := range inst.polygons {
		for i := 0; i+1 < len(poly); i += 2 {
			extend(poly[i], poly[i+1])
		}
	}
	if math.IsInf(x0, 1) {
		return &coco.BoundingBox{}
	}
	return &coco.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
