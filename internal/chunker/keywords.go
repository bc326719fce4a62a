package chunker

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultMaxKeywords caps the keyword list attached to chunk metadata.
const DefaultMaxKeywords = 25

// stopwords are common English words excluded from keyword extraction.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "day": {}, "get": {}, "has": {},
	"him": {}, "his": {}, "how": {}, "its": {}, "may": {}, "new": {},
	"now": {}, "old": {}, "see": {}, "two": {}, "way": {}, "who": {},
	"did": {}, "with": {}, "this": {}, "that": {}, "from": {}, "they": {},
	"have": {}, "been": {}, "were": {}, "will": {}, "when": {}, "what": {},
	"them": {}, "then": {}, "than": {}, "there": {}, "their": {}, "which": {},
	"would": {}, "could": {}, "should": {}, "about": {}, "after": {},
	"before": {}, "into": {}, "over": {}, "under": {}, "also": {}, "only": {},
	"some": {}, "such": {}, "very": {}, "more": {}, "most": {}, "other": {},
	"same": {}, "does": {}, "because": {}, "while": {}, "where": {},
	"being": {}, "each": {}, "these": {}, "those": {}, "both": {},
}

// noiseWords are ticket-domain filler terms that score high by frequency but
// carry no discriminative value.
var noiseWords = map[string]struct{}{
	"summary": {}, "description": {}, "ticket": {}, "status": {},
	"priority": {}, "comments": {}, "comment": {}, "issue": {},
	"analysis": {}, "components": {}, "labels": {}, "please": {},
	"thanks": {}, "update": {}, "updated": {}, "attached": {},
}

// ExtractKeywords returns up to max keywords from text, ranked by a
// frequency-times-inverse-frequency score over lowercase alphanumeric tokens
// of three or more characters. Ties break alphabetically so output is stable.
func ExtractKeywords(text string, max int) []string {
	freq := make(map[string]int)
	total := 0
	for _, tok := range tokenize(text) {
		if len(tok) < 3 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if _, ok := noiseWords[tok]; ok {
			continue
		}
		freq[tok]++
		total++
	}
	if len(freq) == 0 {
		return nil
	}

	type scored struct {
		token string
		score float64
	}
	ranked := make([]scored, 0, len(freq))
	for tok, n := range freq {
		s := float64(n) * math.Log(float64(total+1)/float64(n+1))
		ranked = append(ranked, scored{token: tok, score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].token < ranked[j].token
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.token
	}
	return out
}

// tokenize lowercases text and splits it into alphanumeric runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
