package nlq

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/resolve"
)

// sweepWidth is the number of words in each sweep window.
const sweepWidth = 3

// Rule rewrites every match of Pattern into the canonical value that Seed
// resolves to in Column. When Seed does not resolve, the matched text stays.
type Rule struct {
	Pattern *regexp.Regexp
	Column  string
	Seed    string
}

// RuleSpec is the configuration form of a Rule.
type RuleSpec struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern" json:"pattern"`
	Column  string `mapstructure:"column" yaml:"column" json:"column"`
	Seed    string `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// DefaultRuleSpecs are the stock rules for incident datasets.
func DefaultRuleSpecs() []RuleSpec {
	return []RuleSpec{
		{Pattern: `\bslip\s+trip\b`, Column: "Incident_Type_Category", Seed: "slip trip"},
		{Pattern: `\bnear\s+miss\b`, Column: "Incident_Type", Seed: "near miss"},
	}
}

// CompileRules compiles specs in order. Patterns match case-insensitively.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		if s.Pattern == "" || s.Column == "" || s.Seed == "" {
			return nil, fmt.Errorf("rewrite rule %d: pattern, column and seed are required", i+1)
		}
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rewrite rule %d: %w", i+1, err)
		}
		rules = append(rules, Rule{Pattern: re, Column: s.Column, Seed: s.Seed})
	}
	return rules, nil
}

// Rewriter replaces fuzzy category mentions with canonical dataset values.
type Rewriter struct {
	rules    []Rule
	resolver *resolve.Resolver
}

// NewRewriter returns a Rewriter applying rules before the window sweep.
func NewRewriter(rules []Rule, resolver *resolve.Resolver) *Rewriter {
	if resolver == nil {
		resolver = resolve.New(resolve.DefaultCutoff)
	}
	return &Rewriter{rules: rules, resolver: resolver}
}

// Rewrite never fails: with no dataset, no rules and no matches the
// question comes back unchanged.
func (w *Rewriter) Rewrite(ds *dataset.Dataset, question string) string {
	if ds == nil || question == "" {
		return question
	}
	processed := w.applyRules(ds, question)
	return w.sweep(ds, processed)
}

func (w *Rewriter) applyRules(ds *dataset.Dataset, text string) string {
	for _, r := range w.rules {
		if !r.Pattern.MatchString(text) {
			continue
		}
		canonical, ok := w.resolver.Resolve(ds, r.Seed, r.Column)
		text = r.Pattern.ReplaceAllStringFunc(text, func(m string) string {
			if ok {
				return canonical
			}
			return m
		})
	}
	return text
}

// sweep slides a window over the lower-cased words of text and, for each
// window, replaces its first literal occurrence with the first canonical
// value (in profile order) that is not already spelled out in the window.
func (w *Rewriter) sweep(ds *dataset.Dataset, text string) string {
	words := strings.Fields(strings.ToLower(text))
	out := text
	for i := 0; i+sweepWidth <= len(words); i++ {
		window := strings.Join(words[i:i+sweepWidth], " ")
		for _, p := range ds.Profiles {
			canonical, ok := w.resolver.Match(window, p.Values)
			// Containment, not equality: a window that already spells the
			// value ("many open cases" vs "Open") must not collapse to it.
			if !ok || strings.Contains(window, strings.ToLower(canonical)) {
				continue
			}
			out = strings.Replace(out, window, canonical, 1)
			break
		}
	}
	return out
}
