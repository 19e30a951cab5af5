// Package normalize canonicalizes business names and certificate file names
// so they can be compared by the matching engine.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind tags how a variation was derived.
type Kind string

const (
	KindOriginal           Kind = "original"
	KindSuffixStripped     Kind = "suffix-stripped"
	KindPunctuationRemoved Kind = "punctuation-removed"
	KindPunctuationAsSpace Kind = "punctuation-as-space"
	KindAmpersandSwapped   Kind = "ampersand-swapped"
)

// Variation is one derived form of a name.
type Variation struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Options configures a Normalizer.
type Options struct {
	// BusinessTerms maps a raw token (dots allowed) to the canonical token
	// preserved in the canonical form, e.g. "incorporated" -> "inc".
	BusinessTerms map[string]string
	// Suffixes are canonical tokens removed by the suffix-stripped variation.
	Suffixes []string
}

// DefaultBusinessTerms returns the built-in business term dictionary.
func DefaultBusinessTerms() map[string]string {
	return map[string]string{
		"llc":          "llc",
		"l.l.c":        "llc",
		"inc":          "inc",
		"incorporated": "inc",
		"corp":         "corp",
		"corporation":  "corp",
		"co":           "co",
		"company":      "co",
		"ltd":          "ltd",
		"limited":      "ltd",
		"lp":           "lp",
		"l.p":          "lp",
		"llp":          "llp",
		"l.l.p":        "llp",
		"pc":           "pc",
		"p.c":          "pc",
		"pllc":         "pllc",
	}
}

// DefaultSuffixes returns the legal-entity suffixes stripped from names.
func DefaultSuffixes() []string {
	return []string{"llc", "inc", "corp", "co", "ltd", "lp", "llp", "pc", "pllc"}
}

// Normalizer produces name variations and file stems. It holds only
// immutable configuration and is safe for concurrent use.
type Normalizer struct {
	terms    map[string]string
	suffixes map[string]bool
}

// New creates a Normalizer. Nil options fall back to the defaults.
func New(opts Options) *Normalizer {
	terms := opts.BusinessTerms
	if len(terms) == 0 {
		terms = DefaultBusinessTerms()
	}
	suffixes := opts.Suffixes
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes()
	}

	n := &Normalizer{
		terms:    make(map[string]string, len(terms)),
		suffixes: make(map[string]bool, len(suffixes)),
	}
	for k, v := range terms {
		n.terms[strings.ToLower(strings.Trim(k, ". "))] = strings.ToLower(v)
	}
	for _, s := range suffixes {
		n.suffixes[strings.ToLower(strings.Trim(s, ". "))] = true
	}
	return n
}

// Variations expands a raw name into its ordered, deduplicated variations.
// The original (canonical) form always comes first. A name with no usable
// characters yields a single empty variation, which callers must treat as
// "no signal" rather than a wildcard.
func (n *Normalizer) Variations(name string) []Variation {
	base := prepare(name)

	canonical := n.canonicalTokens(base)
	if len(canonical) == 0 {
		return []Variation{{Text: "", Kind: KindOriginal}}
	}

	out := make([]Variation, 0, 6)
	seen := make(map[string]bool, 6)
	add := func(text string, kind Kind) {
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, Variation{Text: text, Kind: kind})
	}

	add(strings.Join(canonical, ""), KindOriginal)
	add(strings.Join(n.stripSuffixes(canonical), ""), KindSuffixStripped)
	add(removePunctuation(base), KindPunctuationRemoved)
	add(punctuationAsSpace(base), KindPunctuationAsSpace)

	if strings.Contains(base, "&") {
		swapped := strings.ReplaceAll(base, "&", " and ")
		add(strings.Join(n.canonicalTokens(swapped), ""), KindAmpersandSwapped)
	}
	if containsWord(base, "and") {
		swapped := replaceWord(base, "and", "&")
		add(strings.Join(n.canonicalTokens(swapped), ""), KindAmpersandSwapped)
	}
	return out
}

// Canonical returns only the canonical form of s.
func (n *Normalizer) Canonical(s string) string {
	return strings.Join(n.canonicalTokens(prepare(s)), "")
}

// canonicalTokens keeps business terms verbatim and strips punctuation from
// every other token.
func (n *Normalizer) canonicalTokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if term, ok := n.lookupTerm(f); ok {
			out = append(out, term)
			continue
		}
		// Interior punctuation is dropped: "s&g" becomes "sg".
		if cleaned := keepAlnum(f); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func (n *Normalizer) lookupTerm(tok string) (string, bool) {
	key := strings.TrimFunc(tok, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if key == "" {
		return "", false
	}
	if term, ok := n.terms[key]; ok {
		return term, true
	}
	if term, ok := n.terms[strings.ReplaceAll(key, ".", "")]; ok {
		return term, true
	}
	return "", false
}

func (n *Normalizer) stripSuffixes(tokens []string) []string {
	end := len(tokens)
	for end > 1 && n.suffixes[tokens[end-1]] {
		end--
	}
	return tokens[:end]
}

// prepare lowercases, folds diacritics and trims.
func prepare(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.TrimSpace(strings.ToLower(folded))
}

func keepAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func removePunctuation(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func punctuationAsSpace(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}

func replaceWord(s, word, repl string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == word {
			fields[i] = repl
		}
	}
	return strings.Join(fields, " ")
}
