package logging_test

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/kanshi-dev/kanshi/internal/logging"
)

func TestNew_levels(t *testing.T) {
	tests := []struct {
		Level   string
		DebugOn bool
		InfoOn  bool
		WarnOn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"", false, true, true},
		{"nonsense", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.Level, func(t *testing.T) {
			logger := logging.New(tt.Level, "json")

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.DebugOn {
				t.Errorf("expected debug=%v but got %v", tt.DebugOn, got)
			}
			if got := logger.Core().Enabled(zapcore.InfoLevel); got != tt.InfoOn {
				t.Errorf("expected info=%v but got %v", tt.InfoOn, got)
			}
			if got := logger.Core().Enabled(zapcore.WarnLevel); got != tt.WarnOn {
				t.Errorf("expected warn=%v but got %v", tt.WarnOn, got)
			}
		})
	}
}

func TestNew_formats(t *testing.T) {
	for _, format := range []string{"console", "json", ""} {
		if logger := logging.New("info", format); logger == nil {
			t.Errorf("expected a logger for format %q", format)
		}
	}
}
