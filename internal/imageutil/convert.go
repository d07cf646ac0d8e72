// Package imageutil converts raw captured pixel buffers into image.Image
// values and applies capture rotation.
package imageutil

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	apperrors "github.com/ocellus/visionpipe/internal/errors"
	"github.com/ocellus/visionpipe/internal/pipeline"
)

// Decode turns a frame into a displayable image, applying the frame's
// rotation so the result is upright. Frames that already carry a decoded
// image are rotated as-is. Unknown pixel formats yield an unsupported
// input error.
func Decode(f *pipeline.Frame) (image.Image, error) {
	img, err := decodeRaw(f)
	if err != nil {
		return nil, err
	}
	return Rotate(img, f.Metadata.Rotation)
}

func decodeRaw(f *pipeline.Frame) (image.Image, error) {
	if f.Image != nil {
		return f.Image, nil
	}

	md := f.Metadata
	if md.Width <= 0 || md.Height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", md.Width, md.Height)
	}

	switch md.PixelFormat {
	case pipeline.PixelFormatGray8:
		return decodeGray8(f.Data, md.Width, md.Height)
	case pipeline.PixelFormatNV21:
		return decodeNV21(f.Data, md.Width, md.Height)
	case pipeline.PixelFormatRGBA:
		return decodeRGBA(f.Data, md.Width, md.Height)
	default:
		return nil, apperrors.NewUnsupportedInputError(md.PixelFormat.String())
	}
}

func decodeGray8(data []byte, w, h int) (*image.Gray, error) {
	if len(data) < w*h {
		return nil, fmt.Errorf("gray8 buffer too short: have %d, need %d", len(data), w*h)
	}
	return &image.Gray{
		Pix:    data[:w*h],
		Stride: w,
		Rect:   image.Rect(0, 0, w, h),
	}, nil
}

// decodeNV21 deinterleaves the VU chroma plane of an NV21 buffer into the
// planar layout image.YCbCr expects (4:2:0 subsampling).
func decodeNV21(data []byte, w, h int) (*image.YCbCr, error) {
	cw := (w + 1) / 2
	ch := (h + 1) / 2
	need := w*h + 2*cw*ch
	if len(data) < need {
		return nil, fmt.Errorf("nv21 buffer too short: have %d, need %d", len(data), need)
	}

	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	copy(img.Y, data[:w*h])

	vu := data[w*h : need]
	for i := 0; i < cw*ch; i++ {
		img.Cr[i] = vu[2*i]
		img.Cb[i] = vu[2*i+1]
	}
	return img, nil
}

func decodeRGBA(data []byte, w, h int) (*image.RGBA, error) {
	if len(data) < w*h*4 {
		return nil, fmt.Errorf("rgba buffer too short: have %d, need %d", len(data), w*h*4)
	}
	return &image.RGBA{
		Pix:    data[:w*h*4],
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}, nil
}

// Rotate applies a clockwise capture rotation. The imaging primitives
// rotate counter-clockwise, hence the swapped 90/270 cases.
func Rotate(img image.Image, degrees int) (image.Image, error) {
	switch degrees {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	default:
		return nil, fmt.Errorf("unsupported rotation %d, want 0/90/180/270", degrees)
	}
}

// Grayscale converts any image to 8-bit grayscale. Gray images pass
// through without copying.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

// Thumbnail scales the image down to fit within the given bounds while
// preserving aspect ratio. Used by the dashboard preview endpoint.
func Thumbnail(img image.Image, maxW, maxH int) image.Image {
	return imaging.Fit(img, maxW, maxH, imaging.Lanczos)
}

// NewTestPattern renders a simple moving gradient pattern, used by the
// synthetic frame source.
func NewTestPattern(w, h, phase int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x + y + phase)})
		}
	}
	return img
}
