package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T, terms ...string) *Filter {
	t.Helper()
	f, err := NewFilterWithTerms(terms)
	require.NoError(t, err)
	return f
}

func TestNewFilterWithTerms(t *testing.T) {
	req := require.New(t)

	f := newTestFilter(t, "", "  ", "BadWord", "kill yourself", "KILL  yourself!")

	req.Equal(map[string]string{"badword": "badword", "killyourself": "kill yourself"}, f.terms)
	req.NotNil(f.matcher)
}

func TestNewFilterWithTerms_OnlyBlankTerms(t *testing.T) {
	req := require.New(t)

	f := newTestFilter(t, "", " ")

	req.Nil(f.matcher)
	req.Equal(FilterResult{}, f.Check("anything goes"))
}

func TestCheck(t *testing.T) {
	f := newTestFilter(t, "badword", "kill yourself")

	tests := []struct {
		name   string
		input  string
		reason string
		term   string
	}{
		{"exact word", "badword", "blocked_keyword", "badword"},
		{"case and punctuation", "hello, BaDwOrD!", "blocked_keyword", "badword"},
		{"substring is fine", "mybadword", "", ""},
		{"suffix is fine", "badwords", "", ""},
		{"phrase", "you should KILL yourself now", "blocked_keyword", "kill yourself"},
		{"phrase with punctuation", "kill... yourself", "blocked_keyword", "kill yourself"},
		{"split phrase is fine", "kill and yourself", "", ""},
		{"leetspeak", "b@dw0rd", "blocked_keyword", "badword"},
		{"spaced letters", "b a d w o r d", "blocked_keyword", "badword"},
		{"url", "visit https://spam.xyz/click", "spam_pattern", "url"},
		{"www url", "www.phishing.net", "spam_pattern", "url"},
		{"version string", "go v1.22", "", ""},
		{"phone", "call 555-123-4567", "spam_pattern", "phone"},
		{"char flood", "heyyyyy", "spam_pattern", "char_flood"},
		{"word flood", "hi hi HI", "spam_pattern", "word_flood"},
		{"clean", "I love programming", "", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.input)
			require.Equal(t, FilterResult{Blocked: tt.reason != "", Reason: tt.reason, Term: tt.term}, got)
		})
	}
}

func TestCheckName(t *testing.T) {
	req := require.New(t)
	f := NewFilter()

	req.Equal("Alice", f.CheckName("Alice"))
	req.Equal("", f.CheckName("www.evil.com"))
	req.Equal("", f.CheckName("send nudes"))
	req.Equal("", f.CheckName(""))
}

func TestCheckInterests(t *testing.T) {
	req := require.New(t)
	f := newTestFilter(t, "badword")

	req.Equal([]string{"music", "movies"}, f.CheckInterests([]string{"music", "b4dword", "movies"}))
	req.Empty(f.CheckInterests(nil))
}

func TestDefaultBlocklist_LeavesCommonInterestsAlone(t *testing.T) {
	req := require.New(t)
	f := NewFilter()

	interests := []string{"go", "rust", "music", "movies", "gaming", "hiking", "anime", "cooking"}
	req.Equal(interests, f.CheckInterests(interests))

	for _, term := range []string{"go die already", "free bitcoin here", "kys"} {
		req.True(f.Check(term).Blocked, term)
	}
}

func TestNormalizeLeet(t *testing.T) {
	req := require.New(t)

	req.Equal("hello", normalizeLeet("h3ll0"))
	req.Equal("shit", normalizeLeet("$h!t"))
	req.Equal("plain", normalizeLeet("plain"))
}

func TestNormalize_WordBoundaries(t *testing.T) {
	req := require.New(t)

	m := normalize("Hi, b0b!", simplifyRune)

	req.Equal([]rune("hibobi"), m.normalized)
	req.Equal([]bool{true, false, true, false, false, false}, m.wordStart)
	req.Equal([]bool{false, true, false, false, false, true}, m.wordEnd)
}

func TestFloods(t *testing.T) {
	req := require.New(t)

	req.False(hasCharFlood("aaaa"))
	req.True(hasCharFlood("aaaaa"))
	req.False(hasCharFlood(""))
	req.False(hasWordFlood("go go rust"))
	req.True(hasWordFlood("go Go GO"))
}

func BenchmarkCheck(b *testing.B) {
	f := NewFilter()
	name := "night owl who likes jazz"

	for b.Loop() {
		f.Check(name)
	}
}
