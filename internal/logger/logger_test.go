package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("uid", "u1").Msg("seeded")

	output := buf.String()
	if !strings.Contains(output, "seeded") {
		t.Errorf("Expected output to contain 'seeded', got: %s", output)
	}
	if !strings.Contains(output, `"uid":"u1"`) {
		t.Errorf("Expected structured uid field, got: %s", output)
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
		"component": "cloudsync",
		"attempt":   2,
	})
	log.Info().Msg("push")

	output := buf.String()
	assert.Contains(t, output, `"component":"cloudsync"`)
	assert.Contains(t, output, `"attempt":2`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pocketbook.log")

	log, closer, err := NewFromConfig(Config{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug().Str("field", "theme").Msg("field updated")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"field":"theme"`)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewFromConfig_InvalidLevel(t *testing.T) {
	_, _, err := NewFromConfig(Config{Level: "chatty"})
	assert.Error(t, err)
}
