package services

import (
	"html"
	"regexp"
	"strings"

	"langschool_backend/pkg/utils"
)

const (
	// DefaultASCIIThreshold is the percentage of ASCII text above which a note
	// is considered unlikely to be written in Japanese.
	DefaultASCIIThreshold = 60.0

	alertNoteMaxChars = 300
	linkRedaction     = "[link removed]"
)

const (
	asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	asciiWhitespace  = " \t\n\r\x0b\x0c"
)

var linkRegex = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s<>"']+`)

func isASCIIText(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r < 0x80 && (strings.ContainsRune(asciiPunctuation, r) || strings.ContainsRune(asciiWhitespace, r)):
		return true
	}
	return false
}

// ASCIIPercentageAnalysis reports whether the share of ASCII letters, whitespace
// and punctuation in text exceeds thresholdPercent. Digits do not count as ASCII
// here. Empty text never triggers.
func ASCIIPercentageAnalysis(text string, thresholdPercent float64) bool {
	total, ascii := 0, 0
	for _, r := range text {
		total++
		if isASCIIText(r) {
			ascii++
		}
	}
	if total == 0 {
		return false
	}
	return float64(100*ascii)/float64(total) > thresholdPercent
}

// ContainsLink reports whether text holds anything URL shaped.
func ContainsLink(text string) bool {
	return linkRegex.MatchString(text)
}

// SanitizeAlertNote redacts links in a submitted note, keeps its first 300
// characters and escapes markup for the staff alert. Truncation happens before
// escaping so an entity is never cut in half.
func SanitizeAlertNote(note string) string {
	redacted := linkRegex.ReplaceAllString(note, linkRedaction)
	return html.EscapeString(utils.TruncateRunes(redacted, alertNoteMaxChars))
}
