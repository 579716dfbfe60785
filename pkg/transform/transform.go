// Package transform applies a geometric augmentation pipeline to a whole COCO dataset, keeping
// images, keypoints, bounding boxes and segmentation masks consistent.
//
// The dataset is modified in place: every image and annotation is owned by the goroutine that
// processes its image, so images can be handled concurrently.
package transform

import (
	"context"
	"image"
	"math/rand"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airo-ugent/airo-dataset-tools/pkg/augment"
	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/imageio"
	"github.com/airo-ugent/airo-dataset-tools/pkg/mask"
	"github.com/airo-ugent/airo-dataset-tools/pkg/spatial"
)

// Options configures a transform pass.
type Options struct {
	Pipeline *augment.Pipeline

	// SourceDir is the root the image file names are relative to; TargetDir receives the output
	// images under the same relative names.
	SourceDir string
	TargetDir string

	// Skip, when set, excludes images by file name. Skipped images are copied unchanged.
	Skip func(fileName string) bool

	Workers int
	Seed    int64
	Save    imageio.SaveOptions
	Logger  *zap.SugaredLogger

	// Progress, when set, is called once per finished image. It may be called concurrently.
	Progress func()

	// Hook, when set, is called with the transformed pixels of every image that was not skipped.
	Hook func(img *coco.Image, pixels image.Image, annotations []*coco.Annotation) error
}

// Apply transforms every image of ds and its annotations, writing images to opts.TargetDir.
// The first error aborts the pass.
func Apply(ctx context.Context, ds *coco.Dataset, opts Options) error {
	if opts.Pipeline == nil {
		return errors.New("no transform pipeline configured")
	}
	if opts.TargetDir == "" {
		return errors.New("no target directory configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	groups, err := ds.GroupByImage()
	if err != nil {
		return err
	}
	fields := ds.DetectFields()
	logger.Infow("transforming dataset",
		"images", len(groups),
		"annotations", len(ds.Annotations),
		"keypoints", fields.Keypoints,
		"bbox", fields.BBox,
		"segmentation", fields.Segmentation,
		"transforms", opts.Pipeline.Names())

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, group := range groups {
		if gctx.Err() != nil {
			break
		}
		group := group
		rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := processImage(group, fields, rng, opts, logger); err != nil {
				return errors.Wrapf(err, "image %d (%s)", group.Image.ID, group.Image.FileName)
			}
			if opts.Progress != nil {
				opts.Progress()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func processImage(group coco.ImageAnnotations, fields coco.Fields, rng *rand.Rand, opts Options, logger *zap.SugaredLogger) error {
	img := group.Image
	src := filepath.Join(opts.SourceDir, filepath.FromSlash(img.FileName))
	dst := filepath.Join(opts.TargetDir, filepath.FromSlash(img.FileName))

	if opts.Skip != nil && opts.Skip(img.FileName) {
		logger.Infow("skipping image", "file", img.FileName)
		return imageio.Copy(src, dst)
	}

	pixels, err := imageio.Load(src)
	if err != nil {
		return err
	}
	if b := pixels.Bounds(); b.Dx() != img.Width || b.Dy() != img.Height {
		return errors.Errorf("image file is %dx%d but the dataset says %dx%d", b.Dx(), b.Dy(), img.Width, img.Height)
	}

	batch, err := gather(group.Annotations, fields, img.Width, img.Height)
	if err != nil {
		return err
	}
	batch.Image = pixels

	out, err := opts.Pipeline.Apply(batch, rng)
	if err != nil {
		return err
	}

	img.Width = out.Image.Bounds().Dx()
	img.Height = out.Image.Bounds().Dy()
	if err := imageio.Save(out.Image, dst, opts.Save); err != nil {
		return err
	}

	if err := scatter(group.Annotations, fields, out, img.Width, img.Height); err != nil {
		return err
	}
	logger.Debugw("transformed image", "file", img.FileName, "width", img.Width, "height", img.Height,
		"annotations", len(group.Annotations))

	if opts.Hook != nil {
		return opts.Hook(img, out.Image, group.Annotations)
	}
	return nil
}

// gather flattens the annotations of one image into the batches the pipeline works on, in
// annotation order.
func gather(annotations []*coco.Annotation, fields coco.Fields, width, height int) (augment.Bundle, error) {
	var b augment.Bundle
	for _, ann := range annotations {
		if fields.Keypoints {
			if !ann.HasKeypoints() {
				return augment.Bundle{}, errors.Errorf("annotation %d has no keypoints", ann.ID)
			}
			for _, kp := range ann.Keypoints {
				b.Keypoints = append(b.Keypoints, spatial.Point{X: kp.X, Y: kp.Y})
			}
		}
		if fields.BBox {
			if ann.BBox == nil {
				return augment.Bundle{}, errors.Errorf("annotation %d has no bbox", ann.ID)
			}
			b.Boxes = append(b.Boxes, *ann.BBox)
		}
		if fields.Segmentation {
			if ann.Segmentation == nil {
				return augment.Bundle{}, errors.Errorf("annotation %d has no segmentation", ann.ID)
			}
			m, err := mask.FromSegmentation(*ann.Segmentation, width, height)
			if err != nil {
				return augment.Bundle{}, errors.Wrapf(err, "annotation %d", ann.ID)
			}
			b.Masks = append(b.Masks, m)
		}
	}
	return b, nil
}

// scatter writes the transformed batches back, consuming them in the order gather produced them.
// Keypoints that left the width x height frame become (0, 0, not labeled).
func scatter(annotations []*coco.Annotation, fields coco.Fields, out augment.Bundle, width, height int) error {
	kps, boxes, masks := out.Keypoints, out.Boxes, out.Masks
	for _, ann := range annotations {
		if fields.Keypoints {
			n := len(ann.Keypoints)
			if len(kps) < n {
				return errors.Errorf("transform returned too few keypoints for annotation %d", ann.ID)
			}
			updated := make(coco.Keypoints, n)
			for i, p := range kps[:n] {
				if p.X >= 0 && p.X < float64(width) && p.Y >= 0 && p.Y < float64(height) {
					updated[i] = coco.Keypoint{X: p.X, Y: p.Y, V: ann.Keypoints[i].V}
				} else {
					updated[i] = coco.Keypoint{V: coco.NotLabeled}
				}
			}
			kps = kps[n:]
			ann.Keypoints = updated
			if ann.NumKeypoints != nil {
				labeled := updated.NumLabeled()
				ann.NumKeypoints = &labeled
			}
		}
		if fields.BBox {
			if len(boxes) == 0 {
				return errors.Errorf("transform returned too few boxes for annotation %d", ann.ID)
			}
			box := boxes[0]
			boxes = boxes[1:]
			ann.BBox = &box
		}
		if fields.Segmentation {
			if len(masks) == 0 {
				return errors.Errorf("transform returned too few masks for annotation %d", ann.ID)
			}
			m := masks[0]
			masks = masks[1:]
			seg := mask.ToSegmentation(m)
			ann.Segmentation = &seg
			ann.Area = float64(m.Area())
		}
	}
	if len(kps) != 0 || len(boxes) != 0 || len(masks) != 0 {
		return errors.New("transform returned more annotations than it was given")
	}
	return nil
}
