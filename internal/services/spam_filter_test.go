package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestASCIIPercentageAnalysis(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"english enquiry", "Hi, interested in lessons", true},
		{"link spam", "Buy cheap watches now http://spam.example", true},
		{"japanese", "こんにちは、英会話レッスンについて質問があります。", false},
		{"digits are not ascii", "0120-123-456 09012345678 ok", false},
		{"mostly japanese with a name", "Tanakaです。体験レッスンを予約したいです。", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ASCIIPercentageAnalysis(tt.text, DefaultASCIIThreshold))
		})
	}
}

func TestASCIIPercentageAnalysis_Threshold(t *testing.T) {
	// 3 ascii letters out of 5 characters is 60%.
	text := "abcあい"
	assert.False(t, ASCIIPercentageAnalysis(text, 60))
	assert.True(t, ASCIIPercentageAnalysis(text, 59.9))
}

func TestContainsLink(t *testing.T) {
	assert.True(t, ContainsLink("see http://spam.example now"))
	assert.True(t, ContainsLink("HTTPS://EXAMPLE.COM"))
	assert.True(t, ContainsLink("visit www.example.com"))
	assert.False(t, ContainsLink("email me at someone@example.com"))
	assert.False(t, ContainsLink("レッスンの料金を教えてください"))
}

func TestSanitizeAlertNote(t *testing.T) {
	got := SanitizeAlertNote(`<b>Hello</b> see https://evil.example/x?a=1 & www.spam.example`)
	assert.Equal(t, "&lt;b&gt;Hello&lt;/b&gt; see [link removed] &amp; [link removed]", got)

	long := strings.Repeat("あ", 500)
	got = SanitizeAlertNote(long)
	assert.Equal(t, 300, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))

	// An ampersand at the cut is escaped whole.
	got = SanitizeAlertNote(strings.Repeat("あ", 298) + "&x")
	assert.True(t, strings.HasSuffix(got, "&amp;x"), got)

	got = SanitizeAlertNote(strings.Repeat("あ", 299) + "&x")
	assert.True(t, strings.HasSuffix(got, "あ&amp;"), got)

	got = SanitizeAlertNote(strings.Repeat("<", 400))
	assert.Equal(t, strings.Repeat("&lt;", 300), got)
}
