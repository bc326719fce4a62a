// Package resolution suggests next steps for an unresolved ticket by mining
// resolved tickets: semantic first, lexical overlap second, and a generic
// diagnostic checklist as the terminal fallback that is never empty.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/combot/ticketsearch/internal/chunker"
	"github.com/combot/ticketsearch/internal/jira"
	"github.com/combot/ticketsearch/internal/retrieval"
	"github.com/combot/ticketsearch/internal/storage"
	"github.com/combot/ticketsearch/internal/ticket"
)

// ErrTicketNotFound is surfaced when the target ticket does not exist.
var ErrTicketNotFound = jira.ErrTicketNotFound

// Path records which cascade branch produced the suggestion. Part of the
// contract: callers and operators branch on it.
type Path string

const (
	// PathExact means the target was already resolved and the suggestion is
	// its own resolution summary.
	PathExact Path = "exact"
	// PathSemantic means similar resolved tickets were found by vector
	// search with label/component boosting.
	PathSemantic Path = "semantic"
	// PathLexical means the semantic step came up empty and word overlap
	// over resolved summaries produced the references.
	PathLexical Path = "lexical_fallback"
	// PathGeneric is the terminal fallback checklist.
	PathGeneric Path = "generic"
)

// Reference points at one resolved ticket backing the suggestion.
type Reference struct {
	TicketKey string
	Summary   string
	Score     float64
}

// Result is the assembled suggestion for one target ticket.
type Result struct {
	TicketKey  string
	Path       Path
	Suggestion string
	References []Reference
}

// TicketLookup fetches target ticket details from the tracker.
type TicketLookup interface {
	GetTicket(ctx context.Context, key string) (*ticket.Record, error)
}

// Config carries the cascade's tunables.
type Config struct {
	// SemanticThreshold is the minimum raw similarity for a semantic
	// reference.
	SemanticThreshold float32
	// SemanticLimit is the resolved-only candidate pool size.
	SemanticLimit int
	// LexicalScanLimit bounds how many resolved records the lexical path
	// scans.
	LexicalScanLimit int
	// MinWordOverlap is the lexical path's inclusion floor.
	MinWordOverlap int
	// MaxReferences caps references on any path.
	MaxReferences int
	// LabelBoost and ComponentBoost are the additive multipliers applied to
	// similarity for metadata agreement with the target. Empirically chosen
	// in production; tunable, not re-derived.
	LabelBoost     float64
	ComponentBoost float64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		SemanticThreshold: 0.34,
		SemanticLimit:     10,
		LexicalScanLimit:  300,
		MinWordOverlap:    2,
		MaxReferences:     5,
		LabelBoost:        0.05,
		ComponentBoost:    0.07,
	}
}

// Assister runs the cascade.
type Assister struct {
	store    retrieval.ChunkStore
	embedder retrieval.Embedder
	tickets  TicketLookup
	cfg      Config
	logger   *slog.Logger
}

// NewAssister wires the cascade.
func NewAssister(store retrieval.ChunkStore, embedder retrieval.Embedder, tickets TicketLookup, cfg Config, logger *slog.Logger) *Assister {
	def := DefaultConfig()
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = def.SemanticThreshold
	}
	if cfg.SemanticLimit <= 0 {
		cfg.SemanticLimit = def.SemanticLimit
	}
	if cfg.LexicalScanLimit <= 0 {
		cfg.LexicalScanLimit = def.LexicalScanLimit
	}
	if cfg.MinWordOverlap <= 0 {
		cfg.MinWordOverlap = def.MinWordOverlap
	}
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = def.MaxReferences
	}
	if cfg.LabelBoost == 0 {
		cfg.LabelBoost = def.LabelBoost
	}
	if cfg.ComponentBoost == 0 {
		cfg.ComponentBoost = def.ComponentBoost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assister{
		store:    store,
		embedder: embedder,
		tickets:  tickets,
		cfg:      cfg,
		logger:   logger,
	}
}

// Assist produces next-step guidance for the given ticket. The only hard
// error is an unknown ticket key; every infrastructure failure inside the
// cascade degrades to the next-weaker path, ending at the generic checklist,
// so the suggestion is never empty.
func (a *Assister) Assist(ctx context.Context, key string) (*Result, error) {
	target, err := a.tickets.GetTicket(ctx, key)
	if err != nil {
		if errors.Is(err, jira.ErrTicketNotFound) {
			return nil, err
		}
		a.logger.Warn("ticket detail lookup failed, using generic guidance", "key", key, "error", err)
		return a.generic(key), nil
	}

	if ticket.IsTerminalStatus(target.Status) {
		return a.resolvedSummary(target), nil
	}

	version, err := a.store.CurrentVersion(ctx)
	if err != nil {
		a.logger.Warn("no usable ingestion version, using generic guidance", "key", key, "error", err)
		return a.generic(key), nil
	}

	if res := a.semantic(ctx, target, version); res != nil {
		return res, nil
	}
	if res := a.lexical(ctx, target, version); res != nil {
		return res, nil
	}
	return a.generic(key), nil
}

// resolvedSummary short-circuits for an already-resolved target: no ranking,
// just its own resolution data.
func (a *Assister) resolvedSummary(target *ticket.Record) *Result {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is already resolved (status: %s).", target.Key, target.Status)
	if target.FixedVersion != "" {
		fmt.Fprintf(&b, " Fixed in version %s.", target.FixedVersion)
	}
	if target.EngineerAnalysis != "" {
		fmt.Fprintf(&b, "\nRoot cause: %s", target.EngineerAnalysis)
	}
	if n := len(target.Comments); n > 0 {
		fmt.Fprintf(&b, "\nLatest comment: %s", target.Comments[n-1])
	}
	return &Result{
		TicketKey:  target.Key,
		Path:       PathExact,
		Suggestion: b.String(),
	}
}

// semantic searches resolved-only live chunks near the target's text and
// boosts similarity by label/component agreement:
// adjusted = similarity * (1 + LabelBoost*labels + ComponentBoost*components).
// Returns nil when nothing clears the similarity threshold.
func (a *Assister) semantic(ctx context.Context, target *ticket.Record, version string) *Result {
	text := chunker.CombinedText(*target)
	vector, err := a.embedder.EmbedQuery(ctx, text)
	if err != nil {
		a.logger.Warn("embedding failed on resolution path", "key", target.Key, "error", err)
		return nil
	}

	filter := storage.Filter{}.
		EqBool(storage.FieldIsResolved, true).
		Eq(storage.FieldIngestionVersion, version)
	scored, err := a.store.QueryByVector(ctx, vector, filter, a.cfg.SemanticLimit, a.cfg.SemanticThreshold)
	if err != nil {
		a.logger.Warn("semantic query failed on resolution path", "key", target.Key, "error", err)
		return nil
	}
	if len(scored) == 0 {
		return nil
	}

	type boosted struct {
		chunk    ticket.Chunk
		adjusted float64
	}
	candidates := make([]boosted, 0, len(scored))
	for _, sc := range scored {
		if sc.Chunk.Metadata.TicketKey == target.Key {
			continue
		}
		labels := overlapCount(target.Labels, sc.Chunk.Metadata.Labels)
		components := overlapCount(target.Components, sc.Chunk.Metadata.Components)
		adjusted := sc.Score * (1 + a.cfg.LabelBoost*float64(labels) + a.cfg.ComponentBoost*float64(components))
		candidates = append(candidates, boosted{chunk: sc.Chunk, adjusted: adjusted})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].adjusted > candidates[j].adjusted
	})
	if len(candidates) > a.cfg.MaxReferences {
		candidates = candidates[:a.cfg.MaxReferences]
	}

	res := &Result{TicketKey: target.Key, Path: PathSemantic}
	seen := make(map[string]struct{})
	for _, c := range candidates {
		if _, ok := seen[c.chunk.Metadata.TicketKey]; ok {
			continue
		}
		seen[c.chunk.Metadata.TicketKey] = struct{}{}
		res.References = append(res.References, Reference{
			TicketKey: c.chunk.Metadata.TicketKey,
			Summary:   c.chunk.Metadata.Summary,
			Score:     c.adjusted,
		})
	}
	res.Suggestion = a.buildSuggestion(target, candidates[0].chunk, res.References)
	return res
}

// lexical scans resolved live records and scores them by raw word overlap
// between summaries. Returns nil when nothing reaches the overlap floor.
func (a *Assister) lexical(ctx context.Context, target *ticket.Record, version string) *Result {
	filter := storage.Filter{}.
		EqBool(storage.FieldIsResolved, true).
		Eq(storage.FieldIngestionVersion, version)
	chunks, err := a.store.QueryByFilter(ctx, filter, a.cfg.LexicalScanLimit)
	if err != nil {
		a.logger.Warn("lexical scan failed on resolution path", "key", target.Key, "error", err)
		return nil
	}

	targetWords := wordSet(target.Summary)
	type match struct {
		chunk   ticket.Chunk
		overlap int
	}
	var matches []match
	seen := make(map[string]struct{})
	for _, c := range chunks {
		if c.Metadata.TicketKey == target.Key {
			continue
		}
		if _, ok := seen[c.Metadata.TicketKey]; ok {
			continue
		}
		overlap := 0
		for w := range wordSet(c.Metadata.Summary) {
			if _, ok := targetWords[w]; ok {
				overlap++
			}
		}
		if overlap < a.cfg.MinWordOverlap {
			continue
		}
		seen[c.Metadata.TicketKey] = struct{}{}
		matches = append(matches, match{chunk: c, overlap: overlap})
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].overlap > matches[j].overlap
	})
	if len(matches) > a.cfg.MaxReferences {
		matches = matches[:a.cfg.MaxReferences]
	}

	res := &Result{TicketKey: target.Key, Path: PathLexical}
	for _, m := range matches {
		res.References = append(res.References, Reference{
			TicketKey: m.chunk.Metadata.TicketKey,
			Summary:   m.chunk.Metadata.Summary,
			Score:     float64(m.overlap),
		})
	}
	res.Suggestion = a.buildSuggestion(target, matches[0].chunk, res.References)
	return res
}

// buildSuggestion renders guidance from the best reference plus the list of
// related resolved tickets.
func (a *Assister) buildSuggestion(target *ticket.Record, best ticket.Chunk, refs []Reference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Similar resolved tickets were found for %s.\n", target.Key)
	fmt.Fprintf(&b, "Closest match %s: %s\n", best.Metadata.TicketKey, best.Metadata.Summary)
	if an := best.Metadata.EngineerAnalysis; an != "" {
		fmt.Fprintf(&b, "How it was resolved: %s\n", snippet(an, 400))
	} else if an := best.Metadata.TriageAnalysis; an != "" {
		fmt.Fprintf(&b, "Triage findings: %s\n", snippet(an, 400))
	}
	if fv := best.Metadata.FixedVersion; fv != "" {
		fmt.Fprintf(&b, "Fix shipped in version %s.\n", fv)
	}
	b.WriteString("Related resolved tickets:")
	for _, r := range refs {
		fmt.Fprintf(&b, "\n- %s: %s", r.TicketKey, r.Summary)
	}
	return b.String()
}

// genericChecklist is the terminal fallback. It must always produce
// actionable text, so it is a fixed constant rather than derived content.
const genericChecklist = `No closely related resolved tickets were found. Suggested diagnostic steps:
1. Clarify scope: confirm which users, environments and versions are affected.
2. Reproduce: establish a minimal, reliable reproduction of the problem.
3. Logs and metrics: collect logs, traces and metrics from the failure window.
4. Configuration: compare configuration against a known-good environment.
5. Dependencies: check recent changes in upstream services and libraries.
6. Narrow the root cause: bisect recent changes and isolate the failing component.
7. Mitigation: apply a workaround or rollback to restore service while the fix is developed.
8. Verification: verify the fix in a staging environment before rollout.
9. Prevention: document the root cause and add regression coverage.`

func (a *Assister) generic(key string) *Result {
	return &Result{
		TicketKey:  key,
		Path:       PathGeneric,
		Suggestion: genericChecklist,
	}
}

func overlapCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[strings.ToLower(s)] = struct{}{}
	}
	n := 0
	for _, s := range b {
		if _, ok := set[strings.ToLower(s)]; ok {
			n++
		}
	}
	return n
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) < 3 {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
