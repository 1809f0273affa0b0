// Package imageio decodes uploaded and on-disk leaf photographs.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"

	"github.com/Tutortoise/rice-leaf-service/models"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotFound     = errors.New("image file not found")
	ErrInvalidImage = errors.New("invalid image format")
)

// Decode reads one image from r. Unknown formats, truncated data and images with
// no pixels are input errors.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", models.Input("invalid image format", errors.Join(ErrInvalidImage, err))
	}
	if img.Bounds().Empty() {
		return nil, format, models.Input("image has no pixels", models.ErrEmptyImage)
	}
	return img, format, nil
}

func DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", models.Input("empty image", models.ErrEmptyImage)
	}
	return Decode(bytes.NewReader(data))
}

// Open decodes the image at path. A missing file wraps ErrNotFound so callers
// can tell it apart from ErrInvalidImage.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.Input(fmt.Sprintf("image not found: %s", path), ErrNotFound)
		}
		return nil, models.Input(fmt.Sprintf("cannot open image %s", path), err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	return img, err
}
