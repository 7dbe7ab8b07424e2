package moderation

import (
	"regexp"
	"strings"
)

var (
	// Bare domains need a path so "v2.0" or "3.14" do not match.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

const (
	charFloodRun = 5 // identical characters in a row
	wordFloodRun = 3 // identical words in a row
)

// spamChecks run in order; the first match wins.
var spamChecks = []struct {
	name  string
	match func(string) bool
}{
	{"url", urlPattern.MatchString},
	{"phone", phonePattern.MatchString},
	{"char_flood", hasCharFlood},
	{"word_flood", hasWordFlood},
}

func checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return FilterResult{}
}

// RE2 has no backreferences, so floods are found by scanning.
func hasCharFlood(text string) bool {
	return longestRun([]rune(text), func(a, b rune) bool { return a == b }) >= charFloodRun
}

func hasWordFlood(text string) bool {
	return longestRun(strings.Fields(strings.ToLower(text)), func(a, b string) bool { return a == b }) >= wordFloodRun
}

// longestRun returns the length of the longest stretch of equal neighbours.
func longestRun[T any](items []T, eq func(a, b T) bool) int {
	if len(items) == 0 {
		return 0
	}
	best, cur := 1, 1
	for i := 1; i < len(items); i++ {
		if eq(items[i-1], items[i]) {
			cur++
			best = max(best, cur)
		} else {
			cur = 1
		}
	}
	return best
}
