package nlq

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/oracle"
)

// DefaultPromptSamples is how many profile values each column shows in the
// prompt.
const DefaultPromptSamples = 5

const synthesizerTemplate = `
You are a SQL expert generating queries for %[1]s.

Database: %[1]s
Table name: %[2]s

Columns with sample values:
%[3]s

CRITICAL RULES:
1. Generate ONLY valid %[1]s SQL
2. Wrap any column or table name with spaces or special characters in square brackets, e.g., [Total Hours]
3. Use EXACT column values as shown in examples (including slashes, spaces, hyphens)
4. Use LIKE with wildcards for partial text matching: WHERE column LIKE '%%value%%'
5. For categories, use the EXACT format from examples (e.g., "Slip/Trip/Fall" not "Slip Trip")
6. Do NOT explain anything
7. Return SQL query ONLY
8. Do NOT include markdown code blocks or backticks
`

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]`)

// SafeIdent wraps name in square brackets when it contains anything other
// than letters, digits and underscores.
func SafeIdent(name string) string {
	if nonWord.MatchString(name) {
		return "[" + name + "]"
	}
	return name
}

// Synthesizer asks the oracle for a query over the active dataset.
type Synthesizer struct {
	oracle  oracle.Oracle
	dialect string
	samples int
}

// NewSynthesizer returns a SQLite synthesizer showing samples values per
// categorical column.
func NewSynthesizer(o oracle.Oracle, samples int) *Synthesizer {
	if samples <= 0 {
		samples = DefaultPromptSamples
	}
	return &Synthesizer{oracle: o, dialect: "SQLite", samples: samples}
}

// SystemPrompt renders the schema-grounded instructions for ds.
func (s *Synthesizer) SystemPrompt(ds *dataset.Dataset) string {
	lines := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		line := SafeIdent(c.Name)
		if vals, ok := ds.Profile(c.Name); ok {
			if len(vals) > s.samples {
				vals = vals[:s.samples]
			}
			line += " (examples: " + strings.Join(vals, ", ") + ")"
		}
		lines[i] = line
	}
	return fmt.Sprintf(synthesizerTemplate, s.dialect, SafeIdent(ds.Table), strings.Join(lines, "\n"))
}

// Synthesize returns the query for question with fence markers removed.
func (s *Synthesizer) Synthesize(ctx context.Context, ds *dataset.Dataset, question string) (string, error) {
	if ds == nil {
		return "", dataset.ErrNoDataset
	}
	out, err := s.oracle.Complete(ctx, s.SystemPrompt(ds), question)
	if err != nil {
		return "", unavailable(err)
	}
	return oracle.ExtractSQL(out)
}
