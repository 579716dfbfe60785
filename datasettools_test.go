package datasettools

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/airo-ugent/airo-dataset-tools/pkg/augment"
	"github.com/airo-ugent/airo-dataset-tools/pkg/coco"
	"github.com/airo-ugent/airo-dataset-tools/pkg/cvat"
	"github.com/airo-ugent/airo-dataset-tools/pkg/imageio"
)

// createTestImage creates a simple test image with a bright subject in the center
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.NRGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

// writeDataset lays out <root>/towels/annotations.json with one 100x100 image
func writeDataset(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "towels")
	require.NoError(t, imageio.Save(createTestImage(100, 100), filepath.Join(dir, "images", "0.png"), imageio.DefaultSaveOptions()))

	labeled := 1
	ds := &coco.Dataset{
		Categories: []coco.Category{{ID: 1, Name: "towel", Keypoints: []string{"corner"}}},
		Images:     []*coco.Image{{ID: 1, FileName: "images/0.png", Width: 100, Height: 100}},
		Annotations: []*coco.Annotation{{
			ID:           1,
			ImageID:      1,
			CategoryID:   1,
			Area:         400,
			NumKeypoints: &labeled,
			Keypoints:    coco.Keypoints{{X: 40, Y: 40, V: coco.LabeledVisible}},
			BBox:         &coco.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20},
			Segmentation: &coco.Segmentation{Polygons: [][]float64{{10, 10, 30, 10, 30, 30, 10, 30}}},
		}},
	}
	path := filepath.Join(dir, "annotations.json")
	require.NoError(t, ds.Save(path))
	return path
}

func TestResizeCOCODataset(t *testing.T) {
	path := writeDataset(t)
	var progress int
	dir, err := ResizeCOCODataset(context.Background(), path, 50, 50, Options{Progress: func() { progress++ }})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(filepath.Dir(path)), "annotations_resized_50x50"), dir)
	assert.Equal(t, 1, progress)

	ds, err := coco.Load(filepath.Join(dir, "annotations.json"))
	require.NoError(t, err)
	require.Len(t, ds.Images, 1)
	assert.Equal(t, 50, ds.Images[0].Width)
	assert.Equal(t, 50, ds.Images[0].Height)

	ann := ds.Annotations[0]
	assert.Equal(t, coco.Keypoint{X: 20, Y: 20, V: coco.LabeledVisible}, ann.Keypoints[0])
	assert.Equal(t, &coco.BoundingBox{X: 5, Y: 5, Width: 10, Height: 10}, ann.BBox)
	assert.InDelta(t, 100, ann.Area, 1e-9)

	img, err := imageio.Load(filepath.Join(dir, "images", "0.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), img.Bounds())
}

func TestResizeCOCODatasetWarnsWhenOverwriting(t *testing.T) {
	path := writeDataset(t)
	core, logs := observer.New(zap.WarnLevel)
	opts := Options{Logger: zap.New(core).Sugar()}

	dir, err := ResizeCOCODataset(context.Background(), path, 50, 50, opts)
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("overwriting existing resized dataset").Len())

	_, err = ResizeCOCODataset(context.Background(), path, 50, 50, opts)
	require.NoError(t, err)
	entries := logs.FilterMessage("overwriting existing resized dataset").All()
	require.Len(t, entries, 1)
	assert.Equal(t, dir, entries[0].ContextMap()["dir"])
}

func TestResizeCOCODatasetInvalidSize(t *testing.T) {
	_, err := ResizeCOCODataset(context.Background(), "annotations.json", 0, 10, Options{})
	assert.Error(t, err)
}

func TestTransformCOCODatasetWithPreview(t *testing.T) {
	path := writeDataset(t)
	target := filepath.Join(t.TempDir(), "out")
	preview := filepath.Join(t.TempDir(), "preview")

	pipeline, err := augment.Build([]augment.Spec{
		{Type: "horizontal_flip", Attributes: map[string]any{"p": 1.0}},
	})
	require.NoError(t, err)

	ds, err := TransformCOCODataset(context.Background(), path, target, pipeline, Options{PreviewDir: preview})
	require.NoError(t, err)
	assert.InDelta(t, 59, ds.Annotations[0].Keypoints[0].X, 1e-9)
	assert.InDelta(t, 70, ds.Annotations[0].BBox.X, 1e-9)

	_, err = os.Stat(filepath.Join(target, "annotations.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(preview, "images", "0.png"))
	assert.NoError(t, err)
}

func TestTransformCOCODatasetRejectsInvalidDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	ds := &coco.Dataset{Images: []*coco.Image{{ID: 1, FileName: "a.png"}}}
	require.NoError(t, ds.Save(path))

	_, err := TransformCOCODataset(context.Background(), path, t.TempDir(), augment.NewPipeline(), Options{})
	assert.ErrorContains(t, err, "invalid size")
}

func TestConvertCVATToCOCO(t *testing.T) {
	xmlPath := filepath.Join(t.TempDir(), "task.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<annotations>
  <meta><task><labels><label><name>tip</name><type>points</type></label></labels></task></meta>
  <image id="1" name="a.png" width="10" height="10">
    <points label="tip" occluded="0" points="3,4"/>
  </image>
</annotations>`), 0o644))

	out, err := ConvertCVATToCOCO(xmlPath, cvat.Options{Category: "pen", AddBBox: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(xmlPath), "task.json"), out)

	ds, err := coco.Load(out)
	require.NoError(t, err)
	require.Len(t, ds.Annotations, 1)
	assert.Equal(t, coco.Keypoints{{X: 3, Y: 4, V: coco.LabeledVisible}}, ds.Annotations[0].Keypoints)
	assert.Equal(t, &coco.BoundingBox{X: 3, Y: 4}, ds.Annotations[0].BBox)
}

func TestValidateCOCODataset(t *testing.T) {
	path := writeDataset(t)
	dir := filepath.Dir(path)
	require.NoError(t, imageio.Save(createTestImage(8, 8), filepath.Join(dir, "images", "extra.png"), imageio.DefaultSaveOptions()))

	report, err := ValidateCOCODataset(path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)
	assert.Equal(t, 1, report.Annotations)
	assert.Equal(t, coco.Fields{Keypoints: true, BBox: true, Segmentation: true}, report.Fields)
	assert.Empty(t, report.Missing)
	assert.Equal(t, []string{"images/extra.png"}, report.Unreferenced)

	require.NoError(t, os.Remove(filepath.Join(dir, "images", "0.png")))
	report, err = ValidateCOCODataset(path)
	assert.ErrorContains(t, err, "does not exist")
	require.NotNil(t, report)
	assert.Equal(t, []string{"images/0.png"}, report.Missing)
}
