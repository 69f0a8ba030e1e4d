// Package failure normalizes job failure messages so repeats of the same
// failure share one fingerprint in logs.
package failure

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Normalization regexes compiled once at package init.
var (
	reDatetime   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`)
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reHostPort   = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`)
	reDuration   = regexp.MustCompile(`\b\d+(\.\d+)?(ns|µs|ms|s|m|h)\b`)
	reNumber     = regexp.MustCompile(`(status )?\b\d+\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

const maxNormalizedBytes = 500

// Fingerprint returns a short stable hash of the normalized message.
func Fingerprint(message string) string {
	sum := sha256.Sum256([]byte(Normalize(message)))
	return fmt.Sprintf("%x", sum[:8])
}

// Normalize strips the volatile parts of a failure message: timestamps, ids,
// addresses, durations and counts. HTTP status codes are kept because they
// distinguish failures.
func Normalize(msg string) string {
	msg = reDatetime.ReplaceAllString(msg, "TS")
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reHexAddr.ReplaceAllString(msg, "0xADDR")
	msg = reHostPort.ReplaceAllString(msg, "ADDR")
	msg = reDuration.ReplaceAllString(msg, "DUR")
	msg = reNumber.ReplaceAllStringFunc(msg, func(m string) string {
		if strings.HasPrefix(m, "status ") {
			return m
		}
		return "N"
	})

	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(strings.TrimSpace(msg))
	return truncateString(msg, maxNormalizedBytes)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
