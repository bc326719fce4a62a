package retrieval

import (
	"strings"
	"unicode"

	"github.com/combot/ticketsearch/internal/ticket"
)

// Weights blends the per-candidate features into the composite score. The
// defaults are empirically chosen constants carried over from production
// tuning; they are exposed as configuration rather than re-derived.
type Weights struct {
	Semantic      float64
	TokenOverlap  float64
	NumberOverlap float64
	KeyMatch      float64
}

// DefaultWeights is the production blend.
var DefaultWeights = Weights{
	Semantic:      0.55,
	TokenOverlap:  0.25,
	NumberOverlap: 0.15,
	KeyMatch:      0.05,
}

// rerankMissing marks a candidate the reranker did not score; it sorts below
// every real rerank score.
const rerankMissing = -1.0

// candidateTextLimit bounds how much chunk text feeds lexical features.
const candidateTextLimit = 400

// candidate is the per-query scoring state around one chunk. Ephemeral,
// never persisted.
type candidate struct {
	chunk         ticket.Chunk
	semanticScore float64
	semanticNorm  float64
	tokenOverlap  float64
	numberOverlap int
	keyMatch      float64
	composite     float64
	rerankScore   float64
}

// queryFeatures is the tokenized form of the query, computed once per query
// and shared across candidates.
type queryFeatures struct {
	tokens  map[string]struct{}
	numbers map[string]struct{}
	upper   string
}

func newQueryFeatures(query string) queryFeatures {
	tokens := splitAlphaNumLower(query)
	return queryFeatures{
		tokens:  toSet(tokens),
		numbers: numberSet(tokens),
		upper:   strings.ToUpper(query),
	}
}

// extractFeatures fills the lexical/structural features of one candidate:
// token overlap against summary+leading text+key, shared numeric tokens, and
// whether the query names the candidate's ticket outright.
func (q queryFeatures) extractFeatures(c *candidate) {
	meta := c.chunk.Metadata
	text := meta.Summary + " " + snippet(c.chunk.Text, candidateTextLimit) + " " + meta.TicketKey
	candTokens := splitAlphaNumLower(text)

	shared := 0
	for tok := range toSet(candTokens) {
		if _, ok := q.tokens[tok]; ok {
			shared++
		}
	}
	c.tokenOverlap = float64(shared) / float64(len(q.tokens)+1)

	c.numberOverlap = 0
	for num := range numberSet(candTokens) {
		if _, ok := q.numbers[num]; ok {
			c.numberOverlap++
		}
	}

	if meta.TicketKey != "" && strings.Contains(q.upper, strings.ToUpper(meta.TicketKey)) {
		c.keyMatch = 1.0
	}
}

// compositeScore blends the features. number_overlap is normalized by the
// pool maximum so the term stays in 0..1 regardless of query shape.
func (w Weights) compositeScore(c *candidate, maxNumberOverlap int) float64 {
	if maxNumberOverlap < 1 {
		maxNumberOverlap = 1
	}
	return w.Semantic*c.semanticNorm +
		w.TokenOverlap*c.tokenOverlap +
		w.NumberOverlap*(float64(c.numberOverlap)/float64(maxNumberOverlap)) +
		w.KeyMatch*c.keyMatch
}

// splitAlphaNumLower splits text into lowercase alphanumeric runs.
func splitAlphaNumLower(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// numberSet keeps tokens that are purely numeric and at least two digits;
// shorter ones are too common to discriminate.
func numberSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokens {
		if len(t) < 2 || !isDigits(t) {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
