// Package coco holds the COCO-style dataset model used by the transform engine.
package coco

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Visibility is the COCO tri-state keypoint flag.
type Visibility int

// Keypoint visibility values
const (
	NotLabeled       Visibility = 0
	LabeledInvisible Visibility = 1
	LabeledVisible   Visibility = 2
)

// Labeled reports whether the keypoint was annotated at all.
func (v Visibility) Labeled() bool {
	return v == LabeledInvisible || v == LabeledVisible
}

// Keypoint is a single (x, y, visibility) triple
type Keypoint struct {
	X float64
	Y float64
	V Visibility
}

// Keypoints is the ordered keypoint list of an annotation. It is persisted as the flat COCO list
// [x0, y0, v0, x1, y1, v1, ...].
type Keypoints []Keypoint

// MarshalJSON writes the flat COCO form.
func (k Keypoints) MarshalJSON() ([]byte, error) {
	flat := make([]float64, 0, 3*len(k))
	for _, kp := range k {
		flat = append(flat, kp.X, kp.Y, float64(kp.V))
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat COCO form.
func (k *Keypoints) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*k = nil
		return nil
	}
	var flat []float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return errors.Wrap(err, "keypoints must be a flat number list")
	}
	if len(flat)%3 != 0 {
		return errors.Errorf("keypoints list has %d values, not a multiple of 3", len(flat))
	}
	out := make(Keypoints, 0, len(flat)/3)
	for i := 0; i < len(flat); i += 3 {
		out = append(out, Keypoint{X: flat[i], Y: flat[i+1], V: Visibility(int(flat[i+2]))})
	}
	*k = out
	return nil
}

// NumLabeled counts keypoints that carry a label.
func (k Keypoints) NumLabeled() int {
	n := 0
	for _, kp := range k {
		if kp.V.Labeled() {
			n++
		}
	}
	return n
}

// BoundingBox is an axis-aligned box in pixels with a top-left origin
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// MarshalJSON writes [x, y, w, h].
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.Width, b.Height})
}

// UnmarshalJSON reads [x, y, w, h].
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "bbox must be a number list")
	}
	if len(v) != 4 {
		return errors.Errorf("bbox has %d values, want 4", len(v))
	}
	*b = BoundingBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	return nil
}

// Area returns width*height
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// RLE is a run-length encoded mask. Counts run over the column-major flattening of the mask and
// start with a run of zeros.
type RLE struct {
	Size   [2]int // height, width
	Counts []uint32
}

// Segmentation is either a polygon list or an RLE mask. Exactly one of the two is set.
type Segmentation struct {
	Polygons [][]float64
	RLE      *RLE
}

// IsRLE reports whether the segmentation is stored as run lengths.
func (s Segmentation) IsRLE() bool {
	return s.RLE != nil
}

type rleJSON struct {
	Size   [2]int          `json:"size"`
	Counts json.RawMessage `json:"counts"`
}

// MarshalJSON writes the polygon list or the uncompressed RLE object.
func (s Segmentation) MarshalJSON() ([]byte, error) {
	if s.RLE != nil {
		counts, err := json.Marshal(s.RLE.Counts)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rleJSON{Size: s.RLE.Size, Counts: counts})
	}
	if s.Polygons == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Polygons)
}

// UnmarshalJSON accepts polygons, uncompressed RLE and compressed (string) RLE.
func (s *Segmentation) UnmarshalJSON(data []byte) error {
	var polygons [][]float64
	if err := json.Unmarshal(data, &polygons); err == nil {
		*s = Segmentation{Polygons: polygons}
		return nil
	}
	var raw rleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "segmentation is neither a polygon list nor an RLE object")
	}
	rle := &RLE{Size: raw.Size}
	var str string
	if err := json.Unmarshal(raw.Counts, &str); err == nil {
		counts, err := DecodeCompressedCounts(str)
		if err != nil {
			return err
		}
		rle.Counts = counts
	} else if err := json.Unmarshal(raw.Counts, &rle.Counts); err != nil {
		return errors.Wrap(err, "rle counts must be a string or a list of integers")
	}
	*s = Segmentation{RLE: rle}
	return nil
}

// Category describes an object class and, for keypoint datasets, its keypoint slots.
type Category struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Supercategory string   `json:"supercategory,omitempty"`
	Keypoints     []string `json:"keypoints,omitempty"`
	Skeleton      [][2]int `json:"skeleton,omitempty"`
}

// Image is an entry of the images table. FileName is relative to the dataset root.
type Image struct {
	ID           int64  `json:"id"`
	FileName     string `json:"file_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	License      *int64 `json:"license,omitempty"`
	CocoURL      string `json:"coco_url,omitempty"`
	FlickrURL    string `json:"flickr_url,omitempty"`
	DateCaptured string `json:"date_captured,omitempty"`
}

// Annotation is one object instance. Keypoints, BBox and Segmentation are optional; nil means absent.
type Annotation struct {
	ID           int64         `json:"id"`
	ImageID      int64         `json:"image_id"`
	CategoryID   int64         `json:"category_id"`
	IsCrowd      int           `json:"iscrowd"`
	Area         float64       `json:"area,omitempty"`
	NumKeypoints *int          `json:"num_keypoints,omitempty"`
	Keypoints    Keypoints     `json:"keypoints"`
	BBox         *BoundingBox  `json:"bbox,omitempty"`
	Segmentation *Segmentation `json:"segmentation,omitempty"`
}

// MarshalJSON omits absent keypoints but keeps an empty, present list as [], so that presence
// survives a save and reload.
func (a Annotation) MarshalJSON() ([]byte, error) {
	type plain Annotation
	out := struct {
		plain
		Keypoints *Keypoints `json:"keypoints,omitempty"`
	}{plain: plain(a)}
	if a.Keypoints != nil {
		out.Keypoints = &a.Keypoints
	}
	return json.Marshal(out)
}

// HasKeypoints reports keypoint presence.
func (a *Annotation) HasKeypoints() bool {
	return a.Keypoints != nil
}

// Dataset is a full COCO file
type Dataset struct {
	Info        json.RawMessage `json:"info,omitempty"`
	Licenses    json.RawMessage `json:"licenses,omitempty"`
	Categories  []Category      `json:"categories"`
	Images      []*Image        `json:"images"`
	Annotations []*Annotation   `json:"annotations"`
}
