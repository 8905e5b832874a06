package processor

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
)

// DecodeImage decodes a jpeg, png, tiff or bmp payload into an RGBA page.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.NewDecodeError("Empty image payload", nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewDecodeError("Failed to decode image", err)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, errors.NewDecodeError("Decoded image has no pixels", nil)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
