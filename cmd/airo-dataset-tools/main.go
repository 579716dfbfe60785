// Package main is the airo-dataset-tools command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	datasettools "github.com/airo-ugent/airo-dataset-tools"
	"github.com/airo-ugent/airo-dataset-tools/internal/config"
	"github.com/airo-ugent/airo-dataset-tools/internal/logging"
	"github.com/airo-ugent/airo-dataset-tools/pkg/augment"
	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/cvat"
)

const (
	flagDebug           = "debug"
	flagWidth           = "width"
	flagHeight          = "height"
	flagWorkers         = "workers"
	flagConfig          = "config"
	flagOutput          = "output"
	flagPreviewDir      = "preview-dir"
	flagCategory        = "category"
	flagSupercategory   = "supercategory"
	flagAddBBox         = "add-bbox"
	flagAddSegmentation = "add-segmentation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		pterm.Error.Println(err.Error())
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var logger *zap.SugaredLogger

	return &cli.App{
		Name:    "airo-dataset-tools",
		Usage:   "transform, convert and validate COCO datasets",
		Version: datasettools.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			logger = logging.NewLogger("airo-dataset-tools", c.Bool(flagDebug))
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "resize-coco-dataset",
				Aliases:   []string{"resize-coco-keypoints-dataset"},
				Usage:     "resize every image of a COCO dataset, next to the dataset directory",
				ArgsUsage: "ANNOTATIONS_JSON",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagWidth, Required: true, Usage: "target width in pixels"},
					&cli.IntFlag{Name: flagHeight, Required: true, Usage: "target height in pixels"},
					&cli.IntFlag{Name: flagWorkers, Value: 1, Usage: "number of images processed in parallel"},
					&cli.StringFlag{Name: flagPreviewDir, Usage: "write annotated previews to `DIR`"},
				},
				Action: func(c *cli.Context) error {
					path, err := singleArg(c, "ANNOTATIONS_JSON")
					if err != nil {
						return err
					}
					opts, done, err := transformOptions(path, logger)
					if err != nil {
						return err
					}
					defer done()
					opts.Workers = c.Int(flagWorkers)
					opts.PreviewDir = c.String(flagPreviewDir)

					dir, err := datasettools.ResizeCOCODataset(c.Context, path, c.Int(flagWidth), c.Int(flagHeight), opts)
					if err != nil {
						return err
					}
					done()
					pterm.Success.Printfln("resized dataset written to %s", dir)
					return nil
				},
			},
			{
				Name:      "transform-coco-dataset",
				Usage:     "apply the transforms of a config file to a COCO dataset",
				ArgsUsage: "ANNOTATIONS_JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagConfig,
						Value: config.GetConfigPath(),
						Usage: "load the transform configuration from `FILE`",
					},
					&cli.StringFlag{Name: flagOutput, Required: true, Usage: "write the transformed dataset to `DIR`"},
					&cli.IntFlag{Name: flagWorkers, Usage: "override the number of workers of the config"},
					&cli.StringFlag{Name: flagPreviewDir, Usage: "write annotated previews to `DIR`"},
				},
				Action: func(c *cli.Context) error {
					path, err := singleArg(c, "ANNOTATIONS_JSON")
					if err != nil {
						return err
					}
					cfg, err := config.LoadFromFile(c.String(flagConfig))
					if err != nil {
						return err
					}
					if c.IsSet(flagWorkers) {
						cfg.Workers = c.Int(flagWorkers)
					}
					if cfg.Debug {
						logger = cfg.Logger("airo-dataset-tools", c.Bool(flagDebug))
					}
					if err := cfg.Validate(); err != nil {
						return errors.Wrap(err, "invalid config")
					}
					pipeline, err := cfg.Pipeline()
					if err != nil {
						return err
					}

					opts, done, err := transformOptions(path, logger)
					if err != nil {
						return err
					}
					defer done()
					opts.Workers = cfg.Workers
					opts.Seed = cfg.Seed
					opts.Skip = cfg.SkipFunc()
					opts.Save = &cfg.Output
					opts.PreviewDir = c.String(flagPreviewDir)

					logger.Infow("loaded transforms", "config", c.String(flagConfig), "transforms", pipeline.Names())
					if _, err := datasettools.TransformCOCODataset(c.Context, path, c.String(flagOutput), pipeline, opts); err != nil {
						return err
					}
					done()
					pterm.Success.Printfln("transformed dataset written to %s", c.String(flagOutput))
					return nil
				},
			},
			{
				Name:      "init-transform-config",
				Usage:     "write a starting transform configuration",
				ArgsUsage: "[CONFIG_JSON]",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						path = config.GetConfigPath()
					}
					cfg := config.Default()
					cfg.Transforms = []augment.Spec{
						{Type: "longest_max_size", Attributes: map[string]any{"max_size": 512}},
						{Type: "horizontal_flip", Attributes: map[string]any{"p": 0.5}},
					}
					if err := cfg.SaveToFile(path); err != nil {
						return err
					}
					pterm.Success.Printfln("config written to %s (available transforms: %s)", path,
						strings.Join(augment.Types(), ", "))
					return nil
				},
			},
			{
				Name:      "convert-cvat-to-coco-keypoints",
				Usage:     "convert a CVAT for images XML export to COCO keypoints JSON",
				ArgsUsage: "CVAT_XML",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagCategory, Required: true, Usage: "name of the keypoint category"},
					&cli.StringFlag{Name: flagSupercategory, Usage: "supercategory of the keypoint category"},
					&cli.BoolFlag{
						Name:    flagAddBBox,
						Aliases: []string{"add_bbox"},
						Usage:   "include bounding boxes in the annotations",
					},
					&cli.BoolFlag{
						Name:    flagAddSegmentation,
						Aliases: []string{"add_segmentation"},
						Usage:   "include segmentation polygons in the annotations",
					},
				},
				Action: func(c *cli.Context) error {
					path, err := singleArg(c, "CVAT_XML")
					if err != nil {
						return err
					}
					out, err := datasettools.ConvertCVATToCOCO(path, cvat.Options{
						Category:        c.String(flagCategory),
						Supercategory:   c.String(flagSupercategory),
						AddBBox:         c.Bool(flagAddBBox),
						AddSegmentation: c.Bool(flagAddSegmentation),
					})
					if err != nil {
						return err
					}
					pterm.Success.Printfln("COCO annotations written to %s", out)
					return nil
				},
			},
			{
				Name:      "validate-coco-dataset",
				Usage:     "check a COCO dataset and the images it references",
				ArgsUsage: "ANNOTATIONS_JSON",
				Action: func(c *cli.Context) error {
					path, err := singleArg(c, "ANNOTATIONS_JSON")
					if err != nil {
						return err
					}
					report, err := datasettools.ValidateCOCODataset(path)
					if report != nil {
						printReport(report)
					}
					if err != nil {
						return err
					}
					pterm.Success.Println("dataset is valid")
					return nil
				},
			},
		},
	}
}

func singleArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", errors.Errorf("expected exactly one %s argument, got %d", name, c.NArg())
	}
	return c.Args().First(), nil
}

// transformOptions prepares options with a progress bar sized to the images of the dataset.
// The returned func stops the bar and may be called more than once.
func transformOptions(annotationsPath string, logger *zap.SugaredLogger) (datasettools.Options, func(), error) {
	ds, err := coco.Load(annotationsPath)
	if err != nil {
		return datasettools.Options{}, nil, err
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(len(ds.Images)).
		WithTitle("transforming images").
		Start()
	if err != nil {
		return datasettools.Options{}, nil, errors.Wrap(err, "failed to start progress bar")
	}

	var mu sync.Mutex
	var once sync.Once
	done := func() {
		once.Do(func() {
			_, _ = bar.Stop()
		})
	}
	opts := datasettools.Options{
		Logger: logger,
		Progress: func() {
			mu.Lock()
			defer mu.Unlock()
			bar.Increment()
		},
	}
	return opts, done, nil
}

func printReport(r *datasettools.Report) {
	pterm.Info.Printfln("%d images, %d annotations", r.Images, r.Annotations)
	pterm.Info.Printfln("fields on every annotation: keypoints=%t bbox=%t segmentation=%t",
		r.Fields.Keypoints, r.Fields.BBox, r.Fields.Segmentation)
	for _, name := range r.Missing {
		pterm.Warning.Printfln("missing image file %s", name)
	}
	if len(r.Unreferenced) > 0 {
		pterm.Info.Printfln("%d image files are not referenced by the dataset", len(r.Unreferenced))
	}
}
