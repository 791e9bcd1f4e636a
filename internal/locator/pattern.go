package locator

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// maxAffix is how many runes may surround a synonym in a near-exact name
	// match ("Export CSV", "⭳ Download").
	maxAffix = 16
	// maxTextLen bounds element text considered by free-text matching, so
	// paragraphs that merely mention exporting are ignored.
	maxTextLen = 40
)

// Pattern is a set of case-insensitive synonyms for one intent.
type Pattern struct {
	words []string
}

// NewPattern normalizes and de-duplicates words.
func NewPattern(words ...string) Pattern {
	seen := make(map[string]bool, len(words))
	var p Pattern
	for _, w := range words {
		w = normalize(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		p.words = append(p.words, w)
	}
	return p
}

// With returns a pattern extended by extra words.
func (p Pattern) With(extra ...string) Pattern {
	return NewPattern(append(append([]string(nil), p.words...), extra...)...)
}

// Words returns the normalized synonyms.
func (p Pattern) Words() []string {
	return append([]string(nil), p.words...)
}

// Empty reports whether the pattern has no synonyms.
func (p Pattern) Empty() bool { return len(p.words) == 0 }

// MatchExact reports whether name equals a synonym after normalization.
func (p Pattern) MatchExact(name string) bool {
	n := normalize(name)
	for _, w := range p.words {
		if n == w {
			return true
		}
	}
	return false
}

// MatchName is the near-exact match used for accessible names: the synonym
// may carry a short prefix or suffix separated from it by a non-letter.
func (p Pattern) MatchName(name string) bool {
	n := normalize(name)
	if n == "" {
		return false
	}
	for _, w := range p.words {
		if n == w {
			return true
		}
		if rest, ok := strings.CutPrefix(n, w); ok && utf8.RuneCountInString(rest) <= maxAffix && separated(w, rest, true) {
			return true
		}
		if rest, ok := strings.CutSuffix(n, w); ok && utf8.RuneCountInString(rest) <= maxAffix && separated(w, rest, false) {
			return true
		}
	}
	return false
}

// MatchText reports whether a short visible text contains a synonym as a
// whole word.
func (p Pattern) MatchText(text string) bool {
	n := normalize(text)
	if n == "" || utf8.RuneCountInString(n) > maxTextLen {
		return false
	}
	for _, w := range p.words {
		if containsWord(n, w) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// separated checks the boundary between a synonym and the text around it.
// Scripts written without spaces (Thai, CJK) have no usable boundary, so any
// affix is accepted for synonyms that do not start with a Latin letter.
func separated(word, rest string, restAfter bool) bool {
	if !latin(word) {
		return true
	}
	var r rune
	if restAfter {
		r, _ = utf8.DecodeRuneInString(rest)
	} else {
		r, _ = utf8.DecodeLastRuneInString(rest)
	}
	return !isWordRune(r)
}

func containsWord(text, word string) bool {
	if !latin(word) {
		return strings.Contains(text, word)
	}
	for from := 0; ; {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		from = start + 1
	}
}

func latin(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return r < unicode.MaxLatin1 && unicode.IsLetter(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
