// Package moderation masks forbidden words in message bodies before they
// are persisted or broadcast.
package moderation

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Filter matches a word list against message bodies with an Aho-Corasick
// automaton and masks every hit. Matching ignores case, punctuation and
// spacing so split or decorated words are still caught.
type Filter struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewFilter builds the automaton once, at startup. An empty word list
// yields a filter that passes everything through untouched.
func NewFilter(words []string, mask rune) (*Filter, error) {
	if len(words) == 0 {
		return &Filter{mask: mask}, nil
	}

	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if stripped, _ := strip(word); len(stripped) > 0 {
			patterns = append(patterns, stripped)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{machine: machine, mask: mask}, nil
}

// Apply returns the body with every forbidden span replaced by the mask
// rune. The original spacing and length are preserved.
func (f *Filter) Apply(body string) string {
	if f.machine == nil {
		return body
	}

	stripped, positions := strip(body)
	if len(stripped) == 0 {
		return body
	}

	hits := f.machine.MultiPatternSearch(stripped, false)
	if len(hits) == 0 {
		return body
	}

	masked := []rune(body)
	for _, hit := range hits {
		start := hit.Pos
		end := start + len(hit.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		// positions maps stripped indices back to the original rune slice.
		for i := positions[start]; i <= positions[end-1]; i++ {
			masked[i] = f.mask
		}
	}
	return string(masked)
}

// strip lowercases the input and drops punctuation, symbols and spacing,
// keeping a position map from stripped runes to original indices.
func strip(s string) ([]rune, []int) {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	positions := make([]int, 0, len(runes))
	for i, r := range runes {
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return out, positions
}

// LoadWords reads one forbidden word or phrase per line, skipping blanks
// and #-comments.
func LoadWords(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
