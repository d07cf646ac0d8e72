package detector

import (
	"context"
	"fmt"
	"image"

	apperrors "github.com/ocellus/visionpipe/internal/errors"
	"github.com/ocellus/visionpipe/internal/imageutil"
	"github.com/ocellus/visionpipe/internal/pipeline"
)

const (
	// luminanceGridCells splits each axis into this many analysis cells.
	luminanceGridCells = 8
	// luminanceThreshold is the mean cell brightness that counts as bright.
	luminanceThreshold = 200
)

// Luminance flags unusually bright regions of a frame. It works on the
// grayscale plane and needs no state between frames.
type Luminance struct{}

func NewLuminance() *Luminance { return &Luminance{} }

func (d *Luminance) Name() string { return KindLuminance }

func (d *Luminance) Detect(ctx context.Context, f *pipeline.Frame) (Result, error) {
	gray, err := grayPlane(f)
	if err != nil {
		return Result{}, err
	}

	regions, err := brightCells(ctx, gray)
	if err != nil {
		return Result{}, err
	}
	return Result{Regions: regions}, nil
}

// grayPlane extracts an 8-bit luma image from the frame without a full
// color decode when the raw format already carries one.
func grayPlane(f *pipeline.Frame) (*image.Gray, error) {
	md := f.Metadata

	if f.Image == nil {
		switch md.PixelFormat {
		case pipeline.PixelFormatGray8, pipeline.PixelFormatNV21:
			// Both formats lead with a full-resolution luma plane.
			if len(f.Data) < md.Width*md.Height {
				return nil, apperrors.NewDetectorError(
					fmt.Errorf("luma plane too short: have %d, need %d", len(f.Data), md.Width*md.Height))
			}
			return &image.Gray{
				Pix:    f.Data[:md.Width*md.Height],
				Stride: md.Width,
				Rect:   image.Rect(0, 0, md.Width, md.Height),
			}, nil
		}
	}

	img, err := imageutil.Decode(f)
	if err != nil {
		return nil, err
	}
	return imageutil.Grayscale(img), nil
}

func brightCells(ctx context.Context, gray *image.Gray) ([]Region, error) {
	b := gray.Bounds()
	cellW := b.Dx() / luminanceGridCells
	cellH := b.Dy() / luminanceGridCells
	if cellW == 0 || cellH == 0 {
		return nil, nil
	}

	var regions []Region
	for cy := 0; cy < luminanceGridCells; cy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for cx := 0; cx < luminanceGridCells; cx++ {
			rect := image.Rect(
				b.Min.X+cx*cellW, b.Min.Y+cy*cellH,
				b.Min.X+(cx+1)*cellW, b.Min.Y+(cy+1)*cellH,
			)
			mean := meanLuma(gray, rect)
			if mean >= luminanceThreshold {
				regions = append(regions, Region{
					Rect:       rect,
					Label:      "bright",
					Confidence: float64(mean) / 255,
				})
			}
		}
	}
	return regions, nil
}

func meanLuma(gray *image.Gray, rect image.Rectangle) int {
	var sum, n int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := gray.Pix[(y-gray.Rect.Min.Y)*gray.Stride:]
		for x := rect.Min.X; x < rect.Max.X; x++ {
			sum += int(row[x-gray.Rect.Min.X])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
