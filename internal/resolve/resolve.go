// Package resolve maps free-text fragments onto the canonical categorical
// values stored in a dataset.
package resolve

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCutoff is the minimum similarity ratio for a fuzzy match.
const DefaultCutoff = 0.6

// Profiles exposes the categorical values of a dataset by column.
type Profiles interface {
	Profile(column string) ([]string, bool)
}

// Resolver finds the canonical value closest to a fragment.
type Resolver struct {
	cutoff float64
}

// New returns a Resolver with the given fuzzy cutoff; values outside (0, 1]
// fall back to DefaultCutoff.
func New(cutoff float64) *Resolver {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultCutoff
	}
	return &Resolver{cutoff: cutoff}
}

// Cutoff returns the fuzzy similarity threshold in use.
func (r *Resolver) Cutoff() float64 { return r.cutoff }

// Resolve returns the canonical value of column that fragment refers to.
// It reports false when the column has no profile or nothing matches.
func (r *Resolver) Resolve(p Profiles, fragment, column string) (string, bool) {
	if p == nil {
		return "", false
	}
	values, ok := p.Profile(column)
	if !ok {
		return "", false
	}
	return r.Match(fragment, values)
}

// Match applies the resolution steps to an explicit candidate list. First
// hit wins: verbatim equality, equality after normalization, containment in
// either direction, then the best fuzzy ratio at or above the cutoff. Ties
// go to the earliest candidate.
func (r *Resolver) Match(fragment string, candidates []string) (string, bool) {
	nf := Normalize(fragment)
	if strings.TrimSpace(nf) == "" {
		return "", false
	}
	for _, c := range candidates {
		if c == fragment {
			return c, true
		}
	}

	norm := make([]string, len(candidates))
	for i, c := range candidates {
		norm[i] = Normalize(c)
	}
	for i, nc := range norm {
		if nc == nf {
			return candidates[i], true
		}
	}
	for i, nc := range norm {
		if strings.TrimSpace(nc) == "" {
			continue
		}
		if strings.Contains(nc, nf) || strings.Contains(nf, nc) {
			return candidates[i], true
		}
	}

	best, bestRatio := -1, 0.0
	for i, nc := range norm {
		if strings.TrimSpace(nc) == "" {
			continue
		}
		ratio := Similarity(candidates[i], fragment)
		if ratio >= r.cutoff && ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	if best < 0 {
		return "", false
	}
	return candidates[best], true
}

// Normalize lower-cases s and turns '/' and '-' into spaces.
func Normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("/", " ", "-", " ").Replace(s)
}

// Similarity returns the difflib ratio of the normalized forms of a and b.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(chars(Normalize(a)), chars(Normalize(b))).Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
