// Package images turns encoded image bytes into PDF image XObject data.
//
// JPEG data is embedded as-is with the DCTDecode filter. Every other format
// the registered decoders understand (PNG, GIF, BMP, TIFF, WebP) is decoded
// to 8-bit samples with a separate soft mask for transparency.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register decoders
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is an image ready to be written as an XObject.
type Image struct {
	Width            int
	Height           int
	ColorSpace       string // DeviceRGB, DeviceGray or DeviceCMYK
	BitsPerComponent int
	Filter           string // "DCTDecode" for passthrough JPEG, "" for raw samples
	Decode           []float64
	Data             []byte
	SMask            *Image
	Format           string // name reported by the decoder
}

// Option configures Decode.
type Option func(*options)

type options struct {
	maxDimension int
}

// WithMaxDimension downsamples decoded images whose width or height
// exceeds n pixels. JPEG passthrough is not resampled.
func WithMaxDimension(n int) Option {
	return func(o *options) {
		o.maxDimension = n
	}
}

// Decode detects the format of data and prepares it for embedding.
func Decode(data []byte, opts ...Option) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("detect image format: %w", err)
	}
	if format == "jpeg" {
		return fromJPEG(data, cfg), nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	if o.maxDimension > 0 {
		src = downsample(src, o.maxDimension)
	}
	img := FromImage(src)
	img.Format = format
	return img, nil
}

func fromJPEG(data []byte, cfg image.Config) *Image {
	img := &Image{
		Width:            cfg.Width,
		Height:           cfg.Height,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Filter:           "DCTDecode",
		Data:             data,
		Format:           "jpeg",
	}
	switch cfg.ColorModel {
	case color.GrayModel:
		img.ColorSpace = "DeviceGray"
	case color.CMYKModel:
		// Adobe CMYK JPEGs are stored inverted.
		img.ColorSpace = "DeviceCMYK"
		img.Decode = []float64{1, 0, 1, 0, 1, 0, 1, 0}
	}
	return img
}

// FromImage converts a decoded image to raw samples. Gray images stay
// single-channel; everything else becomes RGB with a soft mask when any
// pixel is not fully opaque.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if g, ok := src.(*image.Gray); ok {
		pixels := make([]byte, 0, w*h)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			off := g.PixOffset(bounds.Min.X, y)
			pixels = append(pixels, g.Pix[off:off+w]...)
		}
		return &Image{Width: w, Height: h, ColorSpace: "DeviceGray", BitsPerComponent: 8, Data: pixels}
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	img := &Image{
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Data:             pixels,
	}
	if hasAlpha {
		img.SMask = &Image{
			Width:            w,
			Height:           h,
			ColorSpace:       "DeviceGray",
			BitsPerComponent: 8,
			Data:             alpha,
		}
	}
	return img
}

func downsample(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}
	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
