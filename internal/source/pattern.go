package source

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ocellus/visionpipe/internal/logger"
	"github.com/ocellus/visionpipe/internal/metrics"
	"github.com/ocellus/visionpipe/internal/pipeline"
)

// PatternConfig parameterizes a synthetic source.
type PatternConfig struct {
	Name        string
	Width       int
	Height      int
	FrameRate   float64 // frames per second
	PixelFormat pipeline.PixelFormat
	Logger      logger.Logger
}

// Pattern generates a moving gradient test pattern at a fixed frame rate.
// It exists to exercise pipelines without camera hardware.
type Pattern struct {
	cfg     PatternConfig
	limiter *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	logger logger.Logger
}

// NewPattern validates the config and builds a source. Start must be
// called separately.
func NewPattern(cfg PatternConfig) (*Pattern, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid pattern dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", cfg.FrameRate)
	}
	switch cfg.PixelFormat {
	case pipeline.PixelFormatGray8, pipeline.PixelFormatNV21, pipeline.PixelFormatRGBA:
	default:
		return nil, fmt.Errorf("unsupported pattern pixel format %s", cfg.PixelFormat)
	}
	if cfg.Name == "" {
		cfg.Name = "pattern"
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNullLogger()
	}

	return &Pattern{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FrameRate), 1),
		logger: cfg.Logger.WithFields(map[string]interface{}{
			"component": "pattern_source",
			"source":    cfg.Name,
		}),
	}, nil
}

func (p *Pattern) Name() string { return p.cfg.Name }

// Start launches the producer goroutine. Calling Start twice is a no-op.
func (p *Pattern) Start(ctx context.Context, submit SubmitFunc) error {
	if submit == nil {
		return fmt.Errorf("submit function required")
	}

	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)

		p.wg.Add(1)
		metrics.IncrementGoroutineCreated("pattern_source")
		go p.produce(ctx, submit)

		p.logger.WithFields(map[string]interface{}{
			"width":        p.cfg.Width,
			"height":       p.cfg.Height,
			"frame_rate":   p.cfg.FrameRate,
			"pixel_format": p.cfg.PixelFormat.String(),
		}).Info("Pattern source started")
	})
	return nil
}

func (p *Pattern) produce(ctx context.Context, submit SubmitFunc) {
	defer p.wg.Done()
	defer metrics.IncrementGoroutineDestroyed("pattern_source")

	for phase := 0; ; phase++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		submit(p.frame(phase))
		metrics.IncrementSourceFrames(p.cfg.Name)
	}
}

// frame renders one test pattern frame in the configured raw layout. The
// phase shifts the gradient so consecutive frames differ, which keeps the
// motion detector busy.
func (p *Pattern) frame(phase int) *pipeline.Frame {
	w, h := p.cfg.Width, p.cfg.Height
	md := pipeline.Metadata{
		Width:       w,
		Height:      h,
		PixelFormat: p.cfg.PixelFormat,
	}

	luma := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			luma[y*w+x] = uint8(x + y + phase)
		}
	}

	switch p.cfg.PixelFormat {
	case pipeline.PixelFormatGray8:
		return pipeline.NewFrame(luma, md)
	case pipeline.PixelFormatNV21:
		cw := (w + 1) / 2
		ch := (h + 1) / 2
		data := make([]byte, w*h+2*cw*ch)
		copy(data, luma)
		// Neutral chroma keeps the pattern colorless.
		for i := w * h; i < len(data); i++ {
			data[i] = 128
		}
		return pipeline.NewFrame(data, md)
	default: // PixelFormatRGBA, validated at construction
		data := make([]byte, w*h*4)
		for i, v := range luma {
			data[i*4] = v
			data[i*4+1] = v
			data[i*4+2] = v
			data[i*4+3] = 255
		}
		return pipeline.NewFrame(data, md)
	}
}

// Stop cancels production and waits for the producer goroutine. Safe to
// call multiple times and before Start.
func (p *Pattern) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.logger.Info("Pattern source stopped")
	})
}
