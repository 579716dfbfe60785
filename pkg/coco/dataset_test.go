package coco

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "categories": [{"id": 1, "name": "towel", "keypoints": ["a", "b"]}],
  "images": [
    {"id": 1, "file_name": "imgs/a.png", "width": 100, "height": 80},
    {"id": 2, "file_name": "imgs/b.png", "width": 64, "height": 64}
  ],
  "annotations": [
    {"id": 10, "image_id": 1, "category_id": 1, "iscrowd": 0,
     "keypoints": [10, 10, 2, 20, 30, 1], "bbox": [5, 5, 20, 20],
     "segmentation": [[0, 0, 10, 0, 10, 10, 0, 10]]},
    {"id": 11, "image_id": 2, "category_id": 1, "iscrowd": 1,
     "keypoints": [1, 2, 0, 3, 4, 2], "bbox": [0, 0, 4, 4],
     "segmentation": {"size": [64, 64], "counts": [0, 10, 4086]}},
    {"id": 12, "image_id": 1, "category_id": 1, "iscrowd": 0,
     "keypoints": [0, 0, 0, 5, 5, 2], "bbox": [1, 1, 2, 2],
     "segmentation": []}
  ]
}`

func loadSample(t *testing.T) *Dataset {
	t.Helper()
	ds, err := Decode(strings.NewReader(sampleJSON))
	require.NoError(t, err)
	return ds
}

func TestDecode(t *testing.T) {
	ds := loadSample(t)
	require.Len(t, ds.Images, 2)
	require.Len(t, ds.Annotations, 3)

	a := ds.Annotations[0]
	assert.Equal(t, Keypoints{{10, 10, LabeledVisible}, {20, 30, LabeledInvisible}}, a.Keypoints)
	assert.Equal(t, &BoundingBox{5, 5, 20, 20}, a.BBox)
	require.NotNil(t, a.Segmentation)
	assert.False(t, a.Segmentation.IsRLE())
	assert.Len(t, a.Segmentation.Polygons, 1)

	b := ds.Annotations[1]
	require.True(t, b.Segmentation.IsRLE())
	assert.Equal(t, [2]int{64, 64}, b.Segmentation.RLE.Size)
	assert.Equal(t, []uint32{0, 10, 4086}, b.Segmentation.RLE.Counts)

	c := ds.Annotations[2]
	require.NotNil(t, c.Segmentation)
	assert.Empty(t, c.Segmentation.Polygons)
}

func TestDecodeRejectsBadKeypoints(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"images": [], "annotations": [{"id": 1, "keypoints": [1, 2]}]}`))
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	ds := loadSample(t)
	path := filepath.Join(t.TempDir(), "out", "annotations.json")
	require.NoError(t, ds.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ds.Images, back.Images)
	assert.Equal(t, ds.Annotations, back.Annotations)
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	ds := &Dataset{
		Images:      []*Image{{ID: 1, FileName: "a.png", Width: 2, Height: 2}},
		Annotations: []*Annotation{{ID: 1, ImageID: 1}},
	}
	var buf bytes.Buffer
	require.NoError(t, ds.Encode(&buf))
	out := buf.String()
	assert.NotContains(t, out, "bbox")
	assert.NotContains(t, out, "segmentation")
	assert.NotContains(t, out, "keypoints")
}

func TestEmptyKeypointsSurviveSaveLoad(t *testing.T) {
	ds, err := Decode(strings.NewReader(`{"images": [{"id": 1, "file_name": "a.png", "width": 2, "height": 2}],
	  "annotations": [{"id": 1, "image_id": 1, "keypoints": []}, {"id": 2, "image_id": 1, "keypoints": null}]}`))
	require.NoError(t, err)
	assert.NotNil(t, ds.Annotations[0].Keypoints)
	assert.Nil(t, ds.Annotations[1].Keypoints)

	ds.Annotations = ds.Annotations[:1]
	require.True(t, ds.DetectFields().Keypoints)

	path := filepath.Join(t.TempDir(), "annotations.json")
	require.NoError(t, ds.Save(path))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ds.DetectFields(), back.DetectFields())
	assert.Equal(t, Keypoints{}, back.Annotations[0].Keypoints)
}

func TestGroupByImage(t *testing.T) {
	ds := loadSample(t)
	groups, err := ds.GroupByImage()
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, int64(1), groups[0].Image.ID)
	require.Len(t, groups[0].Annotations, 2)
	assert.Equal(t, int64(10), groups[0].Annotations[0].ID)
	assert.Equal(t, int64(12), groups[0].Annotations[1].ID)
	require.Len(t, groups[1].Annotations, 1)
}

func TestGroupByImageUnknownImage(t *testing.T) {
	ds := loadSample(t)
	ds.Annotations[1].ImageID = 99
	_, err := ds.GroupByImage()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownImage))
}

func TestGroupByImageDuplicateImage(t *testing.T) {
	ds := loadSample(t)
	ds.Images[1].ID = 1
	_, err := ds.GroupByImage()
	assert.True(t, errors.Is(err, ErrDuplicateImage))
}

func TestDetectFields(t *testing.T) {
	ds := loadSample(t)
	assert.Equal(t, Fields{Keypoints: true, BBox: true, Segmentation: true}, ds.DetectFields())

	ds.Annotations[1].BBox = nil
	assert.Equal(t, Fields{Keypoints: true, BBox: false, Segmentation: true}, ds.DetectFields())

	// a missing field on a later annotation must not be hidden by the first one
	ds.Annotations[2].Keypoints = nil
	assert.False(t, ds.DetectFields().Keypoints)

	assert.Equal(t, Fields{}, (&Dataset{}).DetectFields())
}

func TestValidate(t *testing.T) {
	ds := loadSample(t)
	require.NoError(t, ds.Validate())

	ds.Images[0].Width = 0
	ds.Annotations[0].ImageID = 42
	err := ds.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid size")
	assert.Contains(t, err.Error(), "unknown image")
}

func TestCompressedCountsRoundTrip(t *testing.T) {
	for _, counts := range [][]uint32{
		{},
		{4096},
		{0, 10, 4086},
		{3, 1, 7, 100, 2, 5000, 1, 1},
		{70000, 12, 31, 15, 16, 17, 0, 33},
	} {
		s := EncodeCompressedCounts(counts)
		back, err := DecodeCompressedCounts(s)
		require.NoError(t, err)
		if len(counts) == 0 {
			assert.Empty(t, back)
			continue
		}
		assert.Equal(t, counts, back, "encoded as %q", s)
	}
}

func TestDecodeCompressedCountsInvalid(t *testing.T) {
	_, err := DecodeCompressedCounts("\x01")
	assert.Error(t, err)
}

func TestSegmentationCompressedJSON(t *testing.T) {
	counts := []uint32{5, 3, 56}
	in := `{"size": [8, 8], "counts": "` + EncodeCompressedCounts(counts) + `"}`
	var seg Segmentation
	require.NoError(t, seg.UnmarshalJSON([]byte(in)))
	require.True(t, seg.IsRLE())
	assert.Equal(t, counts, seg.RLE.Counts)
}
