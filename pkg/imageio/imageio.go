// Package imageio loads and saves dataset images.
package imageio

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "golang.org/x/image/webp"
)

// SaveOptions controls encoding of lossy formats
type SaveOptions struct {
	Quality  int  `json:"quality"`
	Lossless bool `json:"lossless"`
}

// DefaultSaveOptions returns the options used when none are configured.
func DefaultSaveOptions() SaveOptions {
	return SaveOptions{Quality: 95}
}

// Load reads an image and normalises it to opaque RGB. Alpha is dropped, not composited.
func Load(path string) (*image.NRGBA, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out, nil
}

func decode(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, errors.Wrap(statErr, "failed to open image file")
	}

	// Fallback: explicit WebP decode
	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, errors.Wrap(openErr, "failed to open image file")
	}
	defer f.Close()
	if img, webpErr := webp.Decode(f); webpErr == nil {
		return img, nil
	}
	return nil, errors.Wrapf(err, "failed to decode image %s", path)
}

// Save writes an image, choosing the format from the file extension. Missing parent directories
// are created first.
func Save(img image.Image, path string, opts SaveOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".webp":
		f, createErr := os.Create(path)
		if createErr != nil {
			return errors.Wrap(createErr, "failed to create output file")
		}
		defer func() {
			err = multierr.Combine(err, f.Close())
		}()
		return webp.Encode(f, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(opts.Quality)})
	case ".jpg", ".jpeg":
		quality := opts.Quality
		if quality <= 0 {
			quality = DefaultSaveOptions().Quality
		}
		return errors.Wrapf(imaging.Save(img, path, imaging.JPEGQuality(quality)), "failed to save %s", path)
	default:
		if _, err := imaging.FormatFromExtension(ext); err != nil {
			return errors.Errorf("unsupported output format: %s", ext)
		}
		return errors.Wrapf(imaging.Save(img, path), "failed to save %s", path)
	}
}

// Copy duplicates a file byte for byte, creating the destination directory on demand.
func Copy(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open source image")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return errors.Wrapf(err, "failed to copy %s", src)
}
