package augment

import (
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Spec describes one transform in a configuration file.
type Spec struct {
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// constructor returns a transform pre-filled with its defaults; attributes are decoded on top.
type constructor func() Transform

var registry = map[string]constructor{
	"resize":            func() Transform { return &Resize{} },
	"longest_max_size":  func() Transform { return &LongestMaxSize{} },
	"smallest_max_size": func() Transform { return &SmallestMaxSize{} },
	"crop":              func() Transform { return &Crop{} },
	"center_crop":       func() Transform { return &CenterCrop{} },
	"random_crop":       func() Transform { return &RandomCrop{} },
	"horizontal_flip":   func() Transform { return &HorizontalFlip{P: 0.5} },
	"vertical_flip":     func() Transform { return &VerticalFlip{P: 0.5} },
	"rotate90":          func() Transform { return &Rotate90{K: 1, P: 1} },
}

// Types lists the registered transform types.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New builds a single transform from its spec. Unknown attributes are rejected.
func New(spec Spec) (Transform, error) {
	ctor, ok := registry[spec.Type]
	if !ok {
		return nil, errors.Errorf("unknown transform type %q", spec.Type)
	}
	t := ctor()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      t,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(spec.Attributes); err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s attributes", spec.Type)
	}
	return t, nil
}

// Build turns a list of specs into a pipeline.
func Build(specs []Spec) (*Pipeline, error) {
	transforms := make([]Transform, 0, len(specs))
	for i, spec := range specs {
		t, err := New(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "transform %d", i)
		}
		transforms = append(transforms, t)
	}
	return NewPipeline(transforms...), nil
}
