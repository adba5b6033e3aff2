// Package decode turns image files into pixel buffers.
package decode

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// bytesPerPixel is the in-memory cost of a decoded pixel (8-bit RGBA).
const bytesPerPixel = 4

// Extensions lists the file extensions handled by the default decoder.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Config describes an image without decoding its pixels.
type Config struct {
	Width  int
	Height int
	Format string
}

// EstimatedBytes approximates the memory needed to hold the decoded image.
func (c Config) EstimatedBytes() uint64 {
	if c.Width <= 0 || c.Height <= 0 {
		return 0
	}
	return uint64(c.Width) * uint64(c.Height) * bytesPerPixel
}

// Decoder loads images from disk. Failures are *types.DecodeFailure.
type Decoder interface {
	// Probe reads only the header to learn the dimensions.
	Probe(path string) (Config, error)

	// Decode reads the full pixel buffer.
	Decode(path string) (image.Image, error)
}

// ImagingDecoder decodes with disintegration/imaging, applying EXIF
// orientation so rotated copies of a photo hash alike.
type ImagingDecoder struct {
	autoOrient bool
}

// New returns the default decoder.
func New() *ImagingDecoder {
	return &ImagingDecoder{autoOrient: true}
}

// Probe implements Decoder.
func (d *ImagingDecoder) Probe(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, types.NewDecodeFailure(path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Config{}, failure(path, err)
	}
	return Config{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode implements Decoder.
func (d *ImagingDecoder) Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(d.autoOrient))
	if err != nil {
		return nil, failure(path, err)
	}
	return img, nil
}

func failure(path string, err error) *types.DecodeFailure {
	if errors.Is(err, image.ErrFormat) {
		return &types.DecodeFailure{
			Path:   path,
			Reason: fmt.Sprintf("unsupported format (%s)", strings.ToLower(filepath.Ext(path))),
			Err:    err,
		}
	}
	return types.NewDecodeFailure(path, err)
}
