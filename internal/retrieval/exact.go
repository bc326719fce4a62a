package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/combot/ticketsearch/internal/storage"
	"github.com/combot/ticketsearch/internal/ticket"
)

// ticketKeyPattern matches tracker identifiers: a 2-10 character project
// prefix of uppercase letters or digits, a hyphen, and 1-7 digits. Digit-led
// prefixes like 2FA-123 are valid. Applied to the uppercased query so
// mixed-case mentions are detected too.
var ticketKeyPattern = regexp.MustCompile(`\b[A-Z0-9]{2,10}-\d{1,7}\b`)

// maxKeysPerQuery caps how many distinct keys one query may trigger.
const maxKeysPerQuery = 3

// dedupePrefixLen is how much leading text feeds the near-duplicate hash.
const dedupePrefixLen = 120

// DetectTicketKeys returns up to maxKeysPerQuery distinct ticket keys named
// in the query, uppercased, in order of first appearance. A match embedded in
// a longer hyphenated token (a UUID segment, a version string) is not a key.
func DetectTicketKeys(query string) []string {
	upper := strings.ToUpper(query)
	var keys []string
	seen := make(map[string]struct{})
	for _, loc := range ticketKeyPattern.FindAllStringIndex(upper, -1) {
		if loc[0] > 0 && upper[loc[0]-1] == '-' {
			continue
		}
		if loc[1] < len(upper) && upper[loc[1]] == '-' {
			continue
		}
		m := upper[loc[0]:loc[1]]
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		keys = append(keys, m)
		if len(keys) == maxKeysPerQuery {
			break
		}
	}
	return keys
}

// keyVariants returns the uppercase key plus any case variants of it that
// appear verbatim in the original query text, so a store populated with
// mixed-case keys still matches.
func keyVariants(key, query string) []string {
	variants := []string{key}
	seen := map[string]struct{}{key: {}}

	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`)
	if err != nil {
		return variants
	}
	for _, m := range re.FindAllString(query, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		variants = append(variants, m)
	}
	return variants
}

// retrieveExact fetches the live chunks for every ticket key named in the
// query. Lookups across keys and case variants run concurrently and must all
// succeed before results are merged; a transport failure on any lookup fails
// the whole exact path so the caller can fall through.
//
// An empty return with nil error is the silent "no keys / no points" outcome
// that routes the query to the hybrid path.
func (e *Engine) retrieveExact(ctx context.Context, query, version string) ([]ticket.Chunk, error) {
	keys := DetectTicketKeys(query)
	if len(keys) == 0 {
		return nil, nil
	}

	var lookups []string
	for _, key := range keys {
		lookups = append(lookups, keyVariants(key, query)...)
	}

	results := make([][]ticket.Chunk, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range lookups {
		g.Go(func() error {
			filter := storage.Filter{}.
				Eq(storage.FieldTicketKey, variant).
				Eq(storage.FieldIngestionVersion, version)
			chunks, err := e.store.QueryByFilter(gctx, filter, e.cfg.PerTicketLimit)
			if err != nil {
				return fmt.Errorf("exact lookup %s: %w", variant, err)
			}
			results[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Variants of one key return overlapping chunk sets; dedupe on the
	// ticket key plus a hash of the leading text.
	var merged []ticket.Chunk
	seen := make(map[string]struct{})
	for _, chunks := range results {
		for _, c := range chunks {
			sig := dedupeSignature(c)
			if _, ok := seen[sig]; ok {
				continue
			}
			seen[sig] = struct{}{}
			merged = append(merged, c)
			if len(merged) == e.cfg.MaxEvidence {
				return merged, nil
			}
		}
	}
	return merged, nil
}

func dedupeSignature(c ticket.Chunk) string {
	prefix := c.Text
	if len(prefix) > dedupePrefixLen {
		prefix = prefix[:dedupePrefixLen]
	}
	h := fnv.New64a()
	h.Write([]byte(prefix))
	return fmt.Sprintf("%s:%x", strings.ToUpper(c.Metadata.TicketKey), h.Sum64())
}
