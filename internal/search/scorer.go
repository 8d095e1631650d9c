// Package search ranks workspace symbols against free-text queries. Scoring
// is layered: exact and prefix matches dominate, then split-name terms,
// stemmed terms and fuzzy similarity fill in, each with its own weight.
package search

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
)

// Weights tunes the score layers.
type Weights struct {
	Exact          float64
	Prefix         float64
	Substring      float64
	NameSplit      float64
	Stemming       float64
	Fuzzy          float64
	FuzzyThreshold float64
	StemMinLength  int
	MinScore       float64
	MaxResults     int
}

// DefaultWeights mirrors the ordering users expect from editor symbol
// search: exact > prefix > substring > structural matches.
func DefaultWeights() Weights {
	return Weights{
		Exact:          1.0,
		Prefix:         0.8,
		Substring:      0.6,
		NameSplit:      0.5,
		Stemming:       0.4,
		Fuzzy:          0.3,
		FuzzyThreshold: 0.82,
		StemMinLength:  4,
		MinScore:       0.2,
		MaxResults:     50,
	}
}

// Match is one ranked symbol.
type Match struct {
	Symbol semantic.SymbolInfo `json:"symbol"`
	Score  float64             `json:"score"`
}

// Scorer ranks symbols. Safe for concurrent use.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Rank scores every symbol against the query and returns matches above the
// threshold, best first. Ties break on the symbol's qualified name so the
// order is stable across runs.
func (s *Scorer) Rank(query string, syms []semantic.SymbolInfo) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	qTerms := SplitName(q)
	qStem := s.stem(q)

	var out []Match
	for _, sym := range syms {
		name := sym.ID.Entity.Name
		if sym.ID.Kind == types.SymbolModule {
			name = sym.ID.Module
		}
		score := s.score(q, qTerms, qStem, strings.ToLower(name))
		if score >= s.w.MinScore {
			out = append(out, Match{Symbol: sym, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol.ID.String() < out[j].Symbol.ID.String()
	})
	if s.w.MaxResults > 0 && len(out) > s.w.MaxResults {
		out = out[:s.w.MaxResults]
	}
	return out
}

func (s *Scorer) score(q string, qTerms []string, qStem, name string) float64 {
	if name == q {
		return s.w.Exact
	}
	best := 0.0
	if strings.HasPrefix(name, q) {
		best = s.w.Prefix
	} else if strings.Contains(name, q) {
		best = s.w.Substring
	}

	terms := SplitName(name)
	for _, t := range terms {
		for _, qt := range qTerms {
			if t == qt {
				best = maxScore(best, s.w.NameSplit)
			} else if s.stem(t) != "" && s.stem(t) == s.stem(qt) {
				best = maxScore(best, s.w.Stemming)
			}
		}
	}

	if best < s.w.Fuzzy {
		if sim, err := edlib.StringsSimilarity(q, name, edlib.JaroWinkler); err == nil &&
			float64(sim) >= s.w.FuzzyThreshold {
			best = maxScore(best, s.w.Fuzzy*float64(sim))
		}
	}
	return best
}

// stem applies porter2 to terms long enough for stemming to be meaningful.
func (s *Scorer) stem(word string) string {
	if len(word) < s.w.StemMinLength {
		return ""
	}
	return porter2.Stem(word)
}

func maxScore(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
