package coco

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrUnknownImage is returned when an annotation references an image id that is not in the dataset.
var ErrUnknownImage = errors.New("annotation references unknown image")

// ErrDuplicateImage is returned when two images share an id.
var ErrDuplicateImage = errors.New("duplicate image id")

// Load reads a dataset from a JSON file
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open annotations file")
	}
	defer f.Close()

	ds, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return ds, nil
}

// Decode reads a dataset from JSON
func Decode(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Encode writes the dataset as JSON, omitting absent optional fields.
func (d *Dataset) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(d)
}

// Save writes the dataset to a JSON file, creating the parent directory if needed.
func (d *Dataset) Save(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create annotations directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create annotations file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	return errors.Wrapf(d.Encode(f), "failed to write %s", path)
}

// ImageAnnotations pairs an image with the annotations that reference it, in dataset order.
type ImageAnnotations struct {
	Image       *Image
	Annotations []*Annotation
}

// GroupByImage maps every image to its annotations. The result follows image order; images without
// annotations are included. A dangling image reference aborts the grouping.
func (d *Dataset) GroupByImage() ([]ImageAnnotations, error) {
	groups := make([]ImageAnnotations, len(d.Images))
	index := make(map[int64]int, len(d.Images))
	for i, img := range d.Images {
		if _, ok := index[img.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateImage, "image id %d", img.ID)
		}
		index[img.ID] = i
		groups[i].Image = img
	}
	for _, ann := range d.Annotations {
		i, ok := index[ann.ImageID]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownImage, "annotation %d references image %d", ann.ID, ann.ImageID)
		}
		groups[i].Annotations = append(groups[i].Annotations, ann)
	}
	return groups, nil
}

// Fields records which optional annotation fields are present on every annotation.
type Fields struct {
	Keypoints    bool
	BBox         bool
	Segmentation bool
}

// DetectFields scans all annotations once. A field counts as present only if every annotation
// carries it; an empty dataset has no fields.
func (d *Dataset) DetectFields() Fields {
	if len(d.Annotations) == 0 {
		return Fields{}
	}
	f := Fields{Keypoints: true, BBox: true, Segmentation: true}
	for _, ann := range d.Annotations {
		f.Keypoints = f.Keypoints && ann.HasKeypoints()
		f.BBox = f.BBox && ann.BBox != nil
		f.Segmentation = f.Segmentation && ann.Segmentation != nil
	}
	return f
}

// Validate reports every referential or size problem in the dataset.
func (d *Dataset) Validate() error {
	var err error
	ids := make(map[int64]struct{}, len(d.Images))
	for _, img := range d.Images {
		if _, ok := ids[img.ID]; ok {
			err = multierr.Append(err, errors.Wrapf(ErrDuplicateImage, "image id %d", img.ID))
		}
		ids[img.ID] = struct{}{}
		if img.Width <= 0 || img.Height <= 0 {
			err = multierr.Append(err, errors.Errorf("image %d (%s) has invalid size %dx%d",
				img.ID, img.FileName, img.Width, img.Height))
		}
		if img.FileName == "" {
			err = multierr.Append(err, errors.Errorf("image %d has no file name", img.ID))
		}
	}
	for _, ann := range d.Annotations {
		if _, ok := ids[ann.ImageID]; !ok {
			err = multierr.Append(err, errors.Wrapf(ErrUnknownImage, "annotation %d references image %d", ann.ID, ann.ImageID))
		}
		if ann.BBox != nil && (ann.BBox.Width < 0 || ann.BBox.Height < 0) {
			err = multierr.Append(err, errors.Errorf("annotation %d has a negative bbox size", ann.ID))
		}
	}
	return err
}
