// Package normalize cleans topic text and converts source timestamps into
// the epoch-millisecond form the destination table expects.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"zsxqsync/pkg/logger"
)

// hashtagPattern matches embedded hashtag markup spans. The title
// attribute carries the URL-encoded label.
var hashtagPattern = regexp.MustCompile(`<e(?:ntity)?\b[^>]*?type="hashtag"[^>]*?title="([^"]*)"[^>]*?/?>`)

// now is replaceable in tests
var now = time.Now

// timestampLayouts are tried in order. The source emits ISO-8601 with
// fractional seconds and a numeric offset; older topics omit the
// fraction, and some omit the offset entirely (then +0800 is assumed,
// the platform's home timezone).
const (
	layoutFull   = "2006-01-02T15:04:05.999999-0700"
	layoutNoFrac = "2006-01-02T15:04:05-0700"
	layoutNoZone = "2006-01-02T15:04:05"
)

var zoneCST = time.FixedZone("CST", 8*60*60)

// Clean replaces every hashtag markup span with its URL-decoded label and
// trims surrounding whitespace. An undecodable label is kept in its raw
// encoded form rather than dropped.
func Clean(raw string, log logger.Logger) string {
	cleaned := hashtagPattern.ReplaceAllStringFunc(raw, func(match string) string {
		groups := hashtagPattern.FindStringSubmatch(match)
		title := groups[1]

		label, err := url.PathUnescape(title)
		if err != nil {
			if log != nil {
				log.WarnWithFields("hashtag label not decodable, keeping raw", map[string]interface{}{
					"title": title,
					"error": err.Error(),
				})
			}
			return title
		}
		return label
	})

	return strings.TrimSpace(cleaned)
}

// EpochMillis parses a source-native timestamp into epoch milliseconds.
// When no layout matches it falls back to the current time with a
// warning; that fallback corrupts historical ordering and exists only to
// keep a malformed topic syncable.
func EpochMillis(value string, log logger.Logger) int64 {
	if t, err := time.Parse(layoutFull, value); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.Parse(layoutNoFrac, value); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.ParseInLocation(layoutNoZone, value, zoneCST); err == nil {
		return t.UnixMilli()
	}

	if log != nil {
		log.WarnWithFields("unparseable create_time, falling back to now", map[string]interface{}{
			"value": value,
		})
	}
	return now().UnixMilli()
}
