// Package datasettools transforms, converts and validates COCO datasets.
//
// The core of the package is a geometric transform engine that applies a pipeline of
// transforms (resize, crops, flips, quarter turns) to every image of a COCO dataset and keeps
// the keypoints, bounding boxes and segmentation masks of each instance consistent with the
// transformed pixels.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		datasettools "github.com/airo-ugent/airo-dataset-tools"
//	)
//
//	func main() {
//		dir, err := datasettools.ResizeCOCODataset(context.Background(), "towels/annotations.json", 256, 256, datasettools.Options{})
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("resized dataset written to %s", dir)
//	}
//
// The package consists of these components:
//
//  1. coco (pkg/coco): the dataset model and its JSON codec
//  2. mask (pkg/mask): conversion between polygons, RLE and pixel masks
//  3. augment (pkg/augment): the geometric transforms
//  4. transform (pkg/transform): the per-image engine
//  5. cvat (pkg/cvat): conversion of CVAT keypoint exports
//  6. overlay (pkg/overlay): annotated previews for checking results
package datasettools

import (
	"context"
	"image"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/airo-ugent/airo-dataset-tools/internal/utils"
	"github.com/airo-ugent/airo-dataset-tools/pkg/augment"
	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/cvat"
	"github.com/airo-ugent/airo-dataset-tools/pkg/imageio"
	"github.com/airo-ugent/airo-dataset-tools/pkg/overlay"
	"github.com/airo-ugent/airo-dataset-tools/pkg/transform"
)

// Version of the dataset tools
const Version = "0.4.0"

// Options tunes a dataset transform. The zero value processes images sequentially with the
// default save options and no logging.
type Options struct {
	Workers    int
	Seed       int64
	Skip       func(fileName string) bool
	Save       *imageio.SaveOptions
	Logger     *zap.SugaredLogger
	Progress   func()
	PreviewDir string
}

// TransformCOCODataset applies pipeline to the dataset described by annotationsPath. Image file
// names are resolved against the directory of the annotations file; transformed images and the
// updated annotations (under the same file name) are written to targetDir.
func TransformCOCODataset(ctx context.Context, annotationsPath, targetDir string, pipeline *augment.Pipeline, opts Options) (*coco.Dataset, error) {
	ds, err := coco.Load(annotationsPath)
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid dataset %s", annotationsPath)
	}

	save := imageio.DefaultSaveOptions()
	if opts.Save != nil {
		save = *opts.Save
	}
	engine := transform.Options{
		Pipeline:  pipeline,
		SourceDir: filepath.Dir(annotationsPath),
		TargetDir: targetDir,
		Skip:      opts.Skip,
		Workers:   opts.Workers,
		Seed:      opts.Seed,
		Save:      save,
		Logger:    opts.Logger,
		Progress:  opts.Progress,
	}
	if opts.PreviewDir != "" {
		engine.Hook = func(img *coco.Image, pixels image.Image, annotations []*coco.Annotation) error {
			return overlay.Write(pixels, annotations, utils.PreviewPath(opts.PreviewDir, img.FileName))
		}
	}
	if err := transform.Apply(ctx, ds, engine); err != nil {
		return nil, err
	}

	if err := ds.Save(filepath.Join(targetDir, filepath.Base(annotationsPath))); err != nil {
		return nil, err
	}
	return ds, nil
}

// ResizeCOCODataset resizes every image of a dataset to width x height. The result is written
// next to the dataset directory, see utils.ResizedDatasetDir; the output directory is returned.
func ResizeCOCODataset(ctx context.Context, annotationsPath string, width, height int, opts Options) (string, error) {
	if width <= 0 || height <= 0 {
		return "", errors.Errorf("target size %dx%d must be positive", width, height)
	}
	targetDir := utils.ResizedDatasetDir(annotationsPath, width, height)
	if utils.DirExists(targetDir) && opts.Logger != nil {
		opts.Logger.Warnw("overwriting existing resized dataset", "dir", targetDir)
	}
	if err := utils.EnsureDir(targetDir); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}
	pipeline := augment.NewPipeline(&augment.Resize{Width: width, Height: height})
	if _, err := TransformCOCODataset(ctx, annotationsPath, targetDir, pipeline, opts); err != nil {
		return "", err
	}
	return targetDir, nil
}

// ConvertCVATToCOCO converts a CVAT XML export and writes <stem>.json next to it. The path of
// the written file is returned.
func ConvertCVATToCOCO(xmlPath string, opts cvat.Options) (string, error) {
	ds, err := cvat.Convert(xmlPath, opts)
	if err != nil {
		return "", err
	}
	path := utils.SiblingJSONPath(xmlPath)
	if err := ds.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

// Report summarises a dataset check.
type Report struct {
	Images       int
	Annotations  int
	Fields       coco.Fields
	Missing      []string
	Unreferenced []string
}

// ValidateCOCODataset checks the annotations file and the images it references. The report is
// returned even when problems are found; the error combines all of them. Image files on disk
// that the dataset does not reference are listed but are not an error.
func ValidateCOCODataset(annotationsPath string) (*Report, error) {
	ds, err := coco.Load(annotationsPath)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Images:      len(ds.Images),
		Annotations: len(ds.Annotations),
		Fields:      ds.DetectFields(),
	}
	problems := ds.Validate()

	root := filepath.Dir(annotationsPath)
	referenced := make(map[string]bool, len(ds.Images))
	for _, img := range ds.Images {
		referenced[img.FileName] = true
		if !utils.FileExists(filepath.Join(root, filepath.FromSlash(img.FileName))) {
			report.Missing = append(report.Missing, img.FileName)
			problems = multierr.Append(problems, errors.Errorf("image file %s does not exist", img.FileName))
		}
	}

	files, err := utils.ListImageFiles(root)
	if err != nil {
		return report, multierr.Append(problems, errors.Wrap(err, "failed to list dataset images"))
	}
	for _, f := range files {
		if !referenced[f] {
			report.Unreferenced = append(report.Unreferenced, f)
		}
	}
	return report, problems
}
