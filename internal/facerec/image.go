package facerec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"regexp"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// maxEncodeDimension bounds the longest side of images sent to an encoder.
const maxEncodeDimension = 1920

var dataURLPrefix = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp|bmp|tiff);base64,`)

// ErrEmptyImage is returned when no image payload was supplied.
var ErrEmptyImage = errors.New("empty image")

// ErrInvalidImage is returned for payloads that are not valid base64 or not a
// decodable image.
var ErrInvalidImage = errors.New("invalid image")

// DecodeBase64 decodes a base64 image payload, stripping an optional
// data:image/...;base64, prefix. Standard and URL-safe alphabets are accepted,
// with or without padding.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(dataURLPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
	if s == "" {
		return nil, ErrEmptyImage
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, &invalidImageError{msg: "invalid base64 image data"}
}

// DecodeImage decodes JPEG, PNG, GIF, WebP, BMP or TIFF data and returns it as RGB.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &invalidImageError{msg: "failed to decode image", err: err}
	}
	return ToRGB(img), format, nil
}

// invalidImageError keeps the decoder message and matches ErrInvalidImage.
type invalidImageError struct {
	msg string
	err error
}

func (e *invalidImageError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *invalidImageError) Unwrap() []error {
	if e.err == nil {
		return []error{ErrInvalidImage}
	}
	return []error{e.err, ErrInvalidImage}
}

// ToRGB flattens img onto an opaque white background.
func ToRGB(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Opaque() && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Downscale shrinks img so its longest side is at most maxDim, keeping aspect ratio.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// ToPNG encodes img as PNG.
func ToPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ToJPEG encodes img as JPEG at quality 95.
func ToJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
