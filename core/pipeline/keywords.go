package pipeline

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords filtered out of keyword extraction. Besides common English
// function words the set covers boilerplate terms that dominate legal
// prose without carrying topical signal.
var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "all": {},
	"also": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "because": {}, "been": {}, "before": {}, "being": {}, "below": {},
	"between": {}, "both": {}, "but": {}, "by": {}, "can": {}, "did": {},
	"do": {}, "does": {}, "doing": {}, "down": {}, "during": {}, "each": {},
	"for": {}, "from": {}, "further": {}, "had": {}, "has": {}, "have": {},
	"having": {}, "he": {}, "her": {}, "here": {}, "him": {}, "his": {},
	"how": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"may": {}, "more": {}, "most": {}, "must": {}, "no": {}, "nor": {},
	"not": {}, "of": {}, "off": {}, "on": {}, "once": {}, "only": {},
	"or": {}, "other": {}, "our": {}, "out": {}, "over": {}, "own": {},
	"per": {}, "shall": {}, "she": {}, "should": {}, "so": {}, "some": {},
	"such": {}, "than": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"through": {}, "to": {}, "under": {}, "until": {}, "up": {}, "upon": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "who": {}, "whom": {}, "why": {}, "will": {},
	"with": {}, "within": {}, "without": {}, "you": {}, "your": {},
	"hereby": {}, "herein": {}, "hereof": {}, "thereof": {}, "therein": {},
	"pursuant": {}, "whereas": {}, "paragraph": {}, "section": {},
	"article": {}, "subsection": {},
}

// KeywordExtractor creates the default keyword function: lowercased
// terms ranked by frequency, stopwords and short tokens removed. Ties
// are broken alphabetically so the result is deterministic.
func KeywordExtractor() KeywordFunc {
	return func(text string, limit int) []string {
		if limit <= 0 {
			return nil
		}

		counts := map[string]int{}
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, word := range words {
			if len(word) < 3 {
				continue
			}
			if _, ok := stopwords[word]; ok {
				continue
			}
			if isNumeric(word) {
				continue
			}
			counts[word]++
		}

		keywords := make([]string, 0, len(counts))
		for word := range counts {
			keywords = append(keywords, word)
		}
		sort.Slice(keywords, func(i, j int) bool {
			if counts[keywords[i]] != counts[keywords[j]] {
				return counts[keywords[i]] > counts[keywords[j]]
			}
			return keywords[i] < keywords[j]
		})

		if len(keywords) > limit {
			keywords = keywords[:limit]
		}
		return keywords
	}
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
