package logger

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"bogus", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "nonsense"})
	assert.Error(t, err)
}

func TestTestLoggerCapture(t *testing.T) {
	log := NewTestLogger()

	log.Info("plain message")
	log.WarnWithFields("with fields", map[string]interface{}{"topic_id": int64(42)})
	log.WithError(errors.New("boom")).Error("failed")
	log.WithField("group_id", int64(7)).Warn("grouped")

	assert.True(t, log.HasMessage("plain message"))
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)

	errs := log.GetMessagesByLevel("ERROR")
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0].Error, "boom")

	warns := log.GetMessagesByLevel("WARN")
	assert.Equal(t, int64(42), warns[0].Fields["topic_id"])
	assert.Equal(t, int64(7), warns[1].Fields["group_id"])

	log.Clear()
	assert.Empty(t, log.GetMessages())
}
