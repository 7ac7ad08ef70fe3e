package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithConfig_Level(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		level zerolog.Level
	}{
		{"default", Config{}, zerolog.InfoLevel},
		{"debug", Config{Level: "DEBUG"}, zerolog.DebugLevel},
		{"json warn", Config{Level: "warn", Format: "json"}, zerolog.WarnLevel},
		{"unknown falls back to info", Config{Level: "loud"}, zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewWithConfig(tt.cfg).GetLevel(); got != tt.level {
				t.Errorf("level = %s, want %s", got, tt.level)
			}
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("run_id", "r1").Msg("run started")

	output := buf.String()
	if !strings.Contains(output, "run started") || !strings.Contains(output, `"run_id":"r1"`) {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"stage":          "categorize",
		"transaction_id": "tx-9",
	})
	log.Info().Msg("item failed")

	output := buf.String()
	if !strings.Contains(output, `"stage":"categorize"`) || !strings.Contains(output, `"transaction_id":"tx-9"`) {
		t.Errorf("Expected fields in output, got: %s", output)
	}
}
