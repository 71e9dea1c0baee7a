package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/halvard/bragi/internal/models"
)

// Scoring constants. The relevance formula is a term-frequency sum; these
// values shape it but are not precision contracts.
const (
	phraseBonus = 5.0
	fuzzyWeight = 0.5
)

// ScorerConfig holds relevance scoring options.
type ScorerConfig struct {
	// TitleWeight multiplies title matches relative to body matches.
	TitleWeight float64
	// FuzzyMatch additionally credits tokens within one edit of a query
	// token at a reduced weight.
	FuzzyMatch bool
	// CaseSensitive disables case folding in tokenization and comparison.
	CaseSensitive bool
	// WholeWords requires exact token equality instead of substring matches.
	WholeWords bool
	// SnippetWindow is the width in bytes of each generated snippet.
	SnippetWindow int
	// MaxSnippets caps the snippets generated per record.
	MaxSnippets int
}

// DefaultScorerConfig returns the default scoring options.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		TitleWeight:   3.0,
		SnippetWindow: 150,
		MaxSnippets:   3,
	}
}

// Scorer computes a relevance score, matched-term set, and highlighted
// snippets for a candidate record against a tokenized query.
type Scorer struct {
	cfg ScorerConfig
	tok Tokenizer
}

// NewScorer creates a Scorer, filling zero-valued options with defaults.
func NewScorer(cfg ScorerConfig) *Scorer {
	def := DefaultScorerConfig()
	if cfg.TitleWeight <= 0 {
		cfg.TitleWeight = def.TitleWeight
	}
	if cfg.SnippetWindow <= 0 {
		cfg.SnippetWindow = def.SnippetWindow
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = def.MaxSnippets
	}
	return &Scorer{cfg: cfg, tok: Tokenizer{CaseSensitive: cfg.CaseSensitive}}
}

// Tokenizer returns the tokenizer matching the scorer's comparison options.
// Queries must be tokenized with it so comparisons line up.
func (s *Scorer) Tokenizer() Tokenizer { return s.tok }

// Score computes the relevance of rec for the given query tokens.
// A zero score means no token matched; the matched-term set is non-empty
// whenever the score is positive.
func (s *Scorer) Score(queryTokens []string, rec models.Record) models.ScoredResult {
	res := models.ScoredResult{Record: rec}
	if len(queryTokens) == 0 {
		return res
	}

	titleTokens := s.tok.Tokenize(rec.Title)
	bodyTokens := s.tok.Tokenize(rec.Body)

	matched := make(map[string]struct{})
	var score float64

	for _, qt := range queryTokens {
		if IsTagToken(qt) {
			if recordHasTag(rec, qt[1:], s.cfg.CaseSensitive) {
				score += s.cfg.TitleWeight
				matched[qt] = struct{}{}
			}
			continue
		}
		tw, tn := s.termFrequency(qt, titleTokens)
		bw, bn := s.termFrequency(qt, bodyTokens)
		if tn+bn == 0 {
			continue
		}
		score += tw*s.cfg.TitleWeight + bw
		res.TitleMatches += tn
		res.BodyMatches += bn
		matched[qt] = struct{}{}
	}

	if len(queryTokens) > 1 &&
		(containsPhrase(titleTokens, queryTokens) || containsPhrase(bodyTokens, queryTokens)) {
		score += phraseBonus
	}

	if score <= 0 {
		return res
	}

	res.Score = score
	res.MatchedTerms = make([]string, 0, len(matched))
	for term := range matched {
		res.MatchedTerms = append(res.MatchedTerms, term)
	}
	sort.Strings(res.MatchedTerms)
	res.Snippets = s.snippets(rec.Body, res.MatchedTerms)
	return res
}

// termFrequency returns the accumulated match weight and hit count of one
// query token against a token sequence.
func (s *Scorer) termFrequency(qt string, toks []string) (float64, int) {
	var w float64
	var n int
	for _, tok := range toks {
		switch {
		case tok == qt:
			w++
			n++
		case !s.cfg.WholeWords && strings.Contains(tok, qt):
			w++
			n++
		case s.cfg.FuzzyMatch && withinOneEdit(qt, tok):
			w += fuzzyWeight
			n++
		}
	}
	return w, n
}

// containsPhrase reports whether phrase appears contiguously in toks.
func containsPhrase(toks, phrase []string) bool {
	if len(phrase) == 0 || len(toks) < len(phrase) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(toks); i++ {
		for j, p := range phrase {
			if toks[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}

// recordHasTag matches a query tag against the record's tag set. A parent
// tag matches its hierarchical children ("work" matches "work/projects").
func recordHasTag(rec models.Record, name string, caseSensitive bool) bool {
	if !caseSensitive {
		name = strings.ToLower(name)
	}
	for _, t := range rec.Tags {
		if !caseSensitive {
			t = strings.ToLower(t)
		}
		if t == name || strings.HasPrefix(t, name+"/") {
			return true
		}
	}
	return false
}

// withinOneEdit reports whether a and b differ by at most one insertion,
// deletion, or substitution.
func withinOneEdit(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb)-len(ra) > 1 {
		return false
	}
	if len(ra) == len(rb) {
		diffs := 0
		for i := range ra {
			if ra[i] != rb[i] {
				diffs++
				if diffs > 1 {
					return false
				}
			}
		}
		return true
	}
	// One rune longer: allow a single skip in the longer string.
	i, j, skipped := 0, 0, false
	for i < len(ra) && j < len(rb) {
		if ra[i] == rb[j] {
			i++
			j++
			continue
		}
		if skipped {
			return false
		}
		skipped = true
		j++
	}
	return true
}

// snippets extracts up to MaxSnippets fixed-width windows around matched
// terms, trimmed to word boundaries. Tag-tokens are matched against the tag
// set, not the body, so they produce no snippet.
func (s *Scorer) snippets(body string, terms []string) []string {
	if body == "" {
		return nil
	}
	hay := body
	if !s.cfg.CaseSensitive {
		hay = strings.ToLower(body)
	}

	type span struct{ start, end int }
	var covered []span
	var out []string

	for _, term := range terms {
		if IsTagToken(term) {
			continue
		}
		if len(out) >= s.cfg.MaxSnippets {
			break
		}
		from := 0
		for len(out) < s.cfg.MaxSnippets {
			i := strings.Index(hay[from:], term)
			if i < 0 {
				break
			}
			pos := from + i
			from = pos + len(term)

			inCovered := false
			for _, sp := range covered {
				if pos >= sp.start && pos < sp.end {
					inCovered = true
					break
				}
			}
			if inCovered {
				continue
			}

			start := pos - s.cfg.SnippetWindow/2
			if start < 0 {
				start = 0
			}
			end := start + s.cfg.SnippetWindow
			if end > len(body) {
				end = len(body)
				if start = end - s.cfg.SnippetWindow; start < 0 {
					start = 0
				}
			}
			start, end = trimToWordBoundaries(body, start, end)
			covered = append(covered, span{start, end})

			snip := strings.TrimSpace(body[start:end])
			if start > 0 {
				snip = "…" + snip
			}
			if end < len(body) {
				snip += "…"
			}
			out = append(out, snip)
		}
	}
	return out
}

// trimToWordBoundaries shrinks [start, end) so it does not cut words (or
// multi-byte runes) at either edge. Windows with no whitespace, such as
// unbroken CJK text, fall back to the nearest rune boundaries.
func trimToWordBoundaries(body string, start, end int) (int, int) {
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end--
	}
	if start > 0 {
		if i := strings.IndexAny(body[start:end], " \t\n"); i >= 0 {
			start += i + 1
		}
	}
	if end < len(body) {
		if i := strings.LastIndexAny(body[start:end], " \t\n"); i > 0 {
			end = start + i
		}
	}
	return start, end
}
