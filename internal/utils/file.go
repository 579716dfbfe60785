package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp":
		return true
	}
	return false
}

// Stem returns the base name up to its first dot, so "annotations.v2.json" becomes "annotations"
func Stem(path string) string {
	stem, _, _ := strings.Cut(filepath.Base(path), ".")
	return stem
}

// ResizedDatasetDir returns the directory a resized copy of a dataset is written to. It sits next
// to the directory holding the annotations file: <parent of dataset dir>/<stem>_resized_<W>x<H>.
func ResizedDatasetDir(annotationsPath string, width, height int) string {
	datasetParent := filepath.Dir(filepath.Dir(annotationsPath))
	return filepath.Join(datasetParent, fmt.Sprintf("%s_resized_%dx%d", Stem(annotationsPath), width, height))
}

// SiblingJSONPath returns <dir of path>/<stem>.json
func SiblingJSONPath(path string) string {
	return filepath.Join(filepath.Dir(path), Stem(path)+".json")
}

// PreviewPath maps an image file name to a PNG preview under previewDir, keeping its relative directory
func PreviewPath(previewDir, fileName string) string {
	rel := filepath.FromSlash(fileName)
	return filepath.Join(previewDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".png")
}

// ListImageFiles recursively lists all image files in a directory. Paths are relative to dir and
// use forward slashes, the way COCO file names are written.
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && IsImageFile(path) {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}

		return nil
	})

	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}
