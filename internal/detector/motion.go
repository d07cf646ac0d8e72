package detector

import (
	"context"
	"image"
	"sync"

	"github.com/ocellus/visionpipe/internal/pipeline"
)

const (
	motionGridCells = 8
	// motionThreshold is the mean per-pixel absolute difference that counts
	// as movement within a cell.
	motionThreshold = 25
)

// Motion detects movement by differencing consecutive grayscale frames.
// The first frame only seeds the reference and reports nothing. The
// pipeline serializes detections, but stills can arrive concurrently with
// live frames, so the reference frame is guarded.
type Motion struct {
	mu   sync.Mutex
	prev *image.Gray
}

func NewMotion() *Motion { return &Motion{} }

func (d *Motion) Name() string { return KindMotion }

func (d *Motion) Detect(ctx context.Context, f *pipeline.Frame) (Result, error) {
	cur, err := grayPlane(f)
	if err != nil {
		return Result{}, err
	}

	d.mu.Lock()
	prev := d.prev
	d.prev = cloneGray(cur)
	d.mu.Unlock()

	if prev == nil || !prev.Rect.Eq(cur.Rect) {
		// No comparable reference yet (first frame or resolution change).
		return Result{}, nil
	}

	regions, err := movedCells(ctx, prev, cur)
	if err != nil {
		return Result{}, err
	}
	return Result{Regions: regions}, nil
}

// Reset drops the reference frame, forcing the next detection to reseed.
func (d *Motion) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// cloneGray copies the luma plane. Frame buffers are recycled by
// producers, so the reference must not alias the submitted data.
func cloneGray(g *image.Gray) *image.Gray {
	out := image.NewGray(g.Rect)
	if out.Stride == g.Stride {
		copy(out.Pix, g.Pix)
		return out
	}
	for y := 0; y < g.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], g.Pix[y*g.Stride:])
	}
	return out
}

func movedCells(ctx context.Context, prev, cur *image.Gray) ([]Region, error) {
	b := cur.Bounds()
	cellW := b.Dx() / motionGridCells
	cellH := b.Dy() / motionGridCells
	if cellW == 0 || cellH == 0 {
		return nil, nil
	}

	var regions []Region
	for cy := 0; cy < motionGridCells; cy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for cx := 0; cx < motionGridCells; cx++ {
			rect := image.Rect(
				b.Min.X+cx*cellW, b.Min.Y+cy*cellH,
				b.Min.X+(cx+1)*cellW, b.Min.Y+(cy+1)*cellH,
			)
			diff := meanAbsDiff(prev, cur, rect)
			if diff >= motionThreshold {
				confidence := float64(diff) / 255
				if confidence > 1 {
					confidence = 1
				}
				regions = append(regions, Region{
					Rect:       rect,
					Label:      "motion",
					Confidence: confidence,
				})
			}
		}
	}
	return regions, nil
}

func meanAbsDiff(prev, cur *image.Gray, rect image.Rectangle) int {
	var sum, n int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		prevRow := prev.Pix[(y-prev.Rect.Min.Y)*prev.Stride:]
		curRow := cur.Pix[(y-cur.Rect.Min.Y)*cur.Stride:]
		for x := rect.Min.X; x < rect.Max.X; x++ {
			a := int(prevRow[x-prev.Rect.Min.X])
			b := int(curRow[x-cur.Rect.Min.X])
			if a > b {
				sum += a - b
			} else {
				sum += b - a
			}
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
