package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		enabled zapcore.Level
	}{
		{"console info", "info", "console", false, zapcore.InfoLevel},
		{"json debug", "debug", "json", false, zapcore.DebugLevel},
		{"default format", "WARN", "", false, zapcore.WarnLevel},
		{"bad level", "loud", "json", true, 0},
		{"bad format", "info", "xml", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !log.Core().Enabled(tt.enabled) {
				t.Errorf("level %v should be enabled", tt.enabled)
			}
			if tt.enabled > zapcore.DebugLevel && log.Core().Enabled(tt.enabled-1) {
				t.Errorf("level %v should be disabled", tt.enabled-1)
			}
		})
	}
}
