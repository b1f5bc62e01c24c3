// Package imageproc decodes product and query images and normalizes them to the encoder's input shape.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the declared width x height of any image this package decodes.
const MaxPixels = 40_000_000

var (
	// ErrUnsupportedFormat is returned for payloads that are not a decodable image.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrImageTooLarge is returned when the declared dimensions exceed MaxPixels.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Check reads only the image header and validates its format and dimensions.
// Pixel data is not decoded, so the cost does not depend on the declared size.
func Check(data []byte) (image.Config, string, error) {
	if len(data) == 0 {
		return image.Config{}, "", fmt.Errorf("%w: empty payload", ErrUnsupportedFormat)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return image.Config{}, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ContentType(data))
		}
		return image.Config{}, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", fmt.Errorf("%w: %dx%d", ErrUnsupportedFormat, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return image.Config{}, "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return cfg, format, nil
}

// Decode parses an encoded image after checking its header with Check.
// It returns the decoded image and its format name.
func Decode(data []byte) (image.Image, string, error) {
	if _, _, err := Check(data); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ContentType(data))
		}
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// ToRGB draws img onto an opaque RGBA canvas over a white background,
// dropping any alpha channel.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Resize scales img to size x size with Catmull-Rom resampling.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Normalize converts img to RGB at size x size.
func Normalize(img image.Image, size int) *image.RGBA {
	rgb := ToRGB(img)
	if b := rgb.Bounds(); b.Dx() == size && b.Dy() == size {
		return rgb
	}
	return Resize(rgb, size)
}

// EncodePNG serializes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Prepare decodes data and returns the normalized PNG the encoder expects.
func Prepare(data []byte, size int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Normalize(img, size))
}

// ContentType sniffs the MIME type of data.
func ContentType(data []byte) string {
	return http.DetectContentType(data)
}

// IsAcceptedUpload reports whether an uploaded payload is a JPEG or PNG.
func IsAcceptedUpload(data []byte) bool {
	switch ContentType(data) {
	case "image/jpeg", "image/png":
		return true
	default:
		return false
	}
}
