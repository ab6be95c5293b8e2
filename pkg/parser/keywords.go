package parser

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultKeywordLimit is used when Parser.KeywordLimit is zero.
const DefaultKeywordLimit = 10

// Keyword is a frequent non-stopword term of a page.
type Keyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

var stopwords = func() map[string]struct{} {
	const list = `a about above after again against all also am an and any are as at
be because been before being below between both but by can cannot could
did do does doing down during each few for from further had has have having
he her here hers herself him himself his how i if in into is it its itself
just me more most my myself no nor not now of off on once only or other our
ours ourselves out over own same she should so some such than that the their
theirs them themselves then there these they this those through to too under
until up very was we were what when where which while who whom why will with
would you your yours yourself yourselves
click home menu page pages search site website loading`
	m := make(map[string]struct{})
	for _, w := range strings.Fields(list) {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether word is ignored by WordFrequency.
func IsStopword(word string) bool {
	_, ok := stopwords[strings.ToLower(word)]
	return ok
}

// WordFrequency counts lowercased words of text, trimmed of surrounding
// punctuation, skipping stopwords and single characters.
func WordFrequency(text string) map[string]int {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(word)) < 2 || IsStopword(word) {
			continue
		}
		counts[word]++
	}
	return counts
}

// MergeFrequencies sums several frequency maps into one.
func MergeFrequencies(maps ...map[string]int) map[string]int {
	out := make(map[string]int)
	for _, m := range maps {
		for w, c := range m {
			out[w] += c
		}
	}
	return out
}

// TopKeywords returns the n most frequent words, ties broken alphabetically.
func TopKeywords(counts map[string]int, n int) []Keyword {
	out := make([]Keyword, 0, len(counts))
	for w, c := range counts {
		out = append(out, Keyword{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
