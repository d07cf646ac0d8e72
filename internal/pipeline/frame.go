package pipeline

import (
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
)

// PixelFormat identifies the raw pixel layout of a captured frame.
type PixelFormat uint8

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatGray8
	PixelFormatNV21
	PixelFormatRGBA
)

// String returns the lowercase name used in config files and logs.
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatGray8:
		return "gray8"
	case PixelFormatNV21:
		return "nv21"
	case PixelFormatRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// ParsePixelFormat converts a config string into a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "gray8":
		return PixelFormatGray8, nil
	case "nv21":
		return PixelFormatNV21, nil
	case "rgba":
		return PixelFormatRGBA, nil
	default:
		return PixelFormatUnknown, fmt.Errorf("unknown pixel format: %q", s)
	}
}

// Metadata describes the geometry and layout of a frame's pixel data.
type Metadata struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Rotation    int         `json:"rotation"` // degrees, clockwise: 0, 90, 180, 270
	PixelFormat PixelFormat `json:"pixel_format"`
}

// Frame is one unit of image data plus its capture metadata. Frames are
// immutable once captured; ownership moves from the producer to the slot,
// then to the in-flight detection, and is released when the result or
// failure has been delivered.
type Frame struct {
	ID         string
	Data       []byte      // raw pixel payload, layout per Metadata.PixelFormat
	Image      image.Image // decoded payload, set when the producer already has one
	Metadata   Metadata
	CapturedAt time.Time

	// Stamped by Processor.Submit, used for end-to-end latency.
	submittedAt time.Time
}

// NewFrame creates a frame from a raw pixel buffer.
func NewFrame(data []byte, md Metadata) *Frame {
	return &Frame{
		ID:         uuid.New().String(),
		Data:       data,
		Metadata:   md,
		CapturedAt: time.Now(),
	}
}

// NewImageFrame creates a frame from an already decoded image.
func NewImageFrame(img image.Image, md Metadata) *Frame {
	return &Frame{
		ID:         uuid.New().String(),
		Image:      img,
		Metadata:   md,
		CapturedAt: time.Now(),
	}
}
