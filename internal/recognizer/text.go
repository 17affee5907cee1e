package recognizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	wsRe  = regexp.MustCompile(`\s+`)
	lower = cases.Lower(language.Und)
)

// CleanText normalizes OCR output to NFC, drops zero-width and control
// characters and collapses whitespace. With lang set, typographic quotes
// and dashes are folded to ASCII as well.
func CleanText(s, lang string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200B', r == '\u200C', r == '\u200D', r == '\uFEFF':
			return -1
		case r == '\n', r == '\r', r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	if lang != "" {
		s = replaceAll(s, ReplacementsFor(lang))
	}
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// ReplacementsFor returns light-touch punctuation folding for a language.
func ReplacementsFor(lang string) map[string]string {
	m := map[string]string{
		"\u2018": "'",
		"\u2019": "'",
		"\u201C": "\"",
		"\u201D": "\"",
		"\u2013": "-",
		"\u2014": "-",
		"\u00A0": " ",
		"\u2009": " ",
	}
	switch strings.ToLower(lang) {
	case "de":
		m["\u201E"] = "\""
	case "fr":
		m["\u00AB"] = "\""
		m["\u00BB"] = "\""
	}
	return m
}

func replaceAll(s string, m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// longer keys first
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		s = strings.ReplaceAll(s, k, m[k])
	}
	return s
}

// LooksLikeText reports whether s is mostly letters and digits.
func LooksLikeText(s string) bool {
	var text, controls, total int
	for _, r := range s {
		total++
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			text++
		case unicode.IsControl(r):
			controls++
		}
	}
	if total == 0 {
		return true
	}
	return float64(controls)/float64(total) < 0.05 && float64(text)/float64(total) > 0.3
}

// Words returns the lowercased, NFC-normalized best candidate of every
// observation, skipping observations without a usable candidate.
func Words(obs []Observation) []string {
	words := make([]string, 0, len(obs))
	for _, o := range obs {
		w := norm.NFC.String(lower.String(CleanText(o.Top(), "")))
		if w == "" {
			continue
		}
		words = append(words, w)
	}
	return words
}

// Limit trims every observation to at most n candidates.
func Limit(obs []Observation, n int) []Observation {
	if n <= 0 {
		return obs
	}
	out := make([]Observation, len(obs))
	for i, o := range obs {
		out[i] = o
		if len(o.Candidates) > n {
			out[i].Candidates = o.Candidates[:n]
		}
	}
	return out
}
