// Package avatar prepares profile images for upload.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // uploads may arrive as PNG

	"github.com/nfnt/resize"
)

// MaxSide bounds the longest edge of a stored avatar.
const MaxSide = 512

// Quality is the JPEG quality avatars are stored at.
const Quality = 50

// ContentType of encoded avatars.
const ContentType = "image/jpeg"

// ErrNoImage is returned when there is nothing to encode.
var ErrNoImage = errors.New("no avatar image")

// Encode shrinks img to fit MaxSide (never enlarging it) and returns it as
// a JPEG at Quality.
func Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	b := img.Bounds()
	if b.Dx() > MaxSide || b.Dy() > MaxSide {
		img = resize.Thumbnail(MaxSide, MaxSide, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads an uploaded JPEG or PNG. Empty input yields ErrNoImage.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	return img, nil
}
