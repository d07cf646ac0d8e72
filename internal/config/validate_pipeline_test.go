package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPipelineConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  PipelineConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: PipelineConfig{
				StatsResetRuns:       500,
				FPSInterval:          time.Second,
				ShowDiagnostics:      true,
				StatsPublishInterval: 5 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "zero stats reset runs",
			config: PipelineConfig{
				StatsResetRuns:       0,
				FPSInterval:          time.Second,
				StatsPublishInterval: 5 * time.Second,
			},
			wantErr: true,
			errMsg:  "stats_reset_runs must be positive",
		},
		{
			name: "zero fps interval",
			config: PipelineConfig{
				StatsResetRuns:       500,
				FPSInterval:          0,
				StatsPublishInterval: 5 * time.Second,
			},
			wantErr: true,
			errMsg:  "fps_interval must be positive",
		},
		{
			name: "zero publish interval",
			config: PipelineConfig{
				StatsResetRuns: 500,
				FPSInterval:    time.Second,
			},
			wantErr: true,
			errMsg:  "stats_publish_interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPatternSourceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  PatternSourceConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "disabled source skips validation",
			config:  PatternSourceConfig{Enabled: false},
			wantErr: false,
		},
		{
			name: "valid config",
			config: PatternSourceConfig{
				Enabled:     true,
				Width:       640,
				Height:      480,
				FrameRate:   30,
				PixelFormat: "gray8",
				Detector:    "luminance",
			},
			wantErr: false,
		},
		{
			name: "invalid dimensions",
			config: PatternSourceConfig{
				Enabled:     true,
				Width:       0,
				Height:      480,
				FrameRate:   30,
				PixelFormat: "gray8",
				Detector:    "luminance",
			},
			wantErr: true,
			errMsg:  "invalid frame dimensions",
		},
		{
			name: "zero frame rate",
			config: PatternSourceConfig{
				Enabled:     true,
				Width:       640,
				Height:      480,
				FrameRate:   0,
				PixelFormat: "gray8",
				Detector:    "luminance",
			},
			wantErr: true,
			errMsg:  "frame_rate must be positive",
		},
		{
			name: "unsupported pixel format",
			config: PatternSourceConfig{
				Enabled:     true,
				Width:       640,
				Height:      480,
				FrameRate:   30,
				PixelFormat: "yuv422",
				Detector:    "luminance",
			},
			wantErr: true,
			errMsg:  "unsupported pixel format",
		},
		{
			name: "unknown detector",
			config: PatternSourceConfig{
				Enabled:     true,
				Width:       640,
				Height:      480,
				FrameRate:   30,
				PixelFormat: "gray8",
				Detector:    "ocr",
			},
			wantErr: true,
			errMsg:  "unknown detector",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
