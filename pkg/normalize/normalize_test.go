package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/logger"
)

func TestClean(t *testing.T) {
	log := logger.NewTestLogger()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text untouched",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "whitespace trimmed",
			input:    "  padded text \n",
			expected: "padded text",
		},
		{
			name:     "hashtag decoded in place",
			input:    `before <e type="hashtag" hid="abc" title="%23%E6%B5%8B%E8%AF%95%23" /> after`,
			expected: "before #测试# after",
		},
		{
			name:     "entity tag variant",
			input:    `<entity type="hashtag" title="%E6%B5%8B%E8%AF%95"/>`,
			expected: "测试",
		},
		{
			name:     "multiple hashtags",
			input:    `<e type="hashtag" title="%23a%23"/> and <e type="hashtag" title="%23b%23"/>`,
			expected: "#a# and #b#",
		},
		{
			name:     "undecodable label kept raw",
			input:    `x <e type="hashtag" title="%ZZbad"/> y`,
			expected: "x %ZZbad y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.input, log))
		})
	}

	assert.NotEmpty(t, log.GetMessagesByLevel("WARN"), "raw fallback should warn")
}

func TestEpochMillis(t *testing.T) {
	log := logger.NewTestLogger()

	t.Run("full timestamp with fraction and offset", func(t *testing.T) {
		got := EpochMillis("2025-12-17T16:31:22.245+0800", log)
		want := time.Date(2025, 12, 17, 16, 31, 22, 245_000_000, time.FixedZone("CST", 8*3600))
		assert.Equal(t, want.UnixMilli(), got)
	})

	t.Run("no fraction", func(t *testing.T) {
		got := EpochMillis("2025-12-17T16:31:22+0800", log)
		want := time.Date(2025, 12, 17, 16, 31, 22, 0, time.FixedZone("CST", 8*3600))
		assert.Equal(t, want.UnixMilli(), got)
	})

	t.Run("no offset assumes +0800", func(t *testing.T) {
		got := EpochMillis("2025-12-17T16:31:22", log)
		want := time.Date(2025, 12, 17, 16, 31, 22, 0, time.FixedZone("CST", 8*3600))
		assert.Equal(t, want.UnixMilli(), got)
	})

	t.Run("malformed falls back to now with warning", func(t *testing.T) {
		fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		now = func() time.Time { return fixed }
		defer func() { now = time.Now }()

		log.Clear()
		got := EpochMillis("last tuesday", log)
		assert.Equal(t, fixed.UnixMilli(), got)

		warns := log.GetMessagesByLevel("WARN")
		require.Len(t, warns, 1)
		assert.Equal(t, "last tuesday", warns[0].Fields["value"])
	})
}
