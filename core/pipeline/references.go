package pipeline

import (
	"regexp"
	"strings"
)

// referencePatterns match the citation formats common in legal prose.
// Each pattern carries the reference kind it detects.
var referencePatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"section", regexp.MustCompile(`§§?\s*\d+[a-z]?(?:\s+[A-Z][A-Za-z]{1,9})?`)},              // § 622, §§ 622, § 622 BGB
	{"section", regexp.MustCompile(`(?i)\b(?:section|sec\.)\s+\d+[a-z]?(?:\(\d+\))*`)},        // Section 4, sec. 4(2)
	{"article", regexp.MustCompile(`(?i)\b(?:article|art\.)\s+\d+[a-z]?`)},                    // Article 12, art. 6a
	{"act", regexp.MustCompile(`\b[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)+\s+Act(?:\s+\d{4})?`)},  // Employment Rights Act 1996
	{"regulation", regexp.MustCompile(`(?i)\bregulation\s+(?:\(\w+\)\s+)?(?:no\.?\s+)?\d+(?:/\d+)?`)}, // Regulation (EU) 2016/679
}

// ReferenceExtractor creates the default legal reference detector.
// Matches are deduplicated on their normalized key, keeping first
// occurrence order.
func ReferenceExtractor() ReferenceFunc {
	return func(text string) []Reference {
		var references []Reference
		seen := map[string]struct{}{}

		for _, rp := range referencePatterns {
			for _, match := range rp.pattern.FindAllString(text, -1) {
				key := NormalizeReference(match)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				references = append(references, Reference{
					Text: match,
					Kind: rp.kind,
					Key:  key,
				})
			}
		}
		return references
	}
}

// NormalizeReference lowercases a citation and collapses whitespace so
// detected references compare equal to stored legal_refs values.
func NormalizeReference(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return strings.Join(strings.Fields(lowered), " ")
}
