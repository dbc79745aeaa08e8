package nlq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/oracle"
)

func TestSafeIdent(t *testing.T) {
	tests := map[string]string{
		"Status":         "Status",
		"Incident_Type":  "Incident_Type",
		"Total Hours":    "[Total Hours]",
		"cost($)":        "[cost($)]",
		"sales-q1":       "[sales-q1]",
		"Größe":          "Größe",
		"incidents 2024": "[incidents 2024]",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeIdent(in), "SafeIdent(%q)", in)
	}
}

func TestSynthesizer_SystemPrompt(t *testing.T) {
	ds := incidentsDataset()
	ds.Table = "incident log"
	ds.Columns = append(ds.Columns, dataset.Column{Name: "Total Hours", Type: "REAL"})
	ds.Profiles[1].Values = []string{"A", "B", "C", "D", "E", "F", "G"}

	prompt := NewSynthesizer(nil, 0).SystemPrompt(ds)
	assert.Contains(t, prompt, "Database: SQLite")
	assert.Contains(t, prompt, "Table name: [incident log]")
	assert.Contains(t, prompt, "Incident_ID\n")
	assert.Contains(t, prompt, "Incident_Type (examples: Near-Miss, Injury)")
	assert.Contains(t, prompt, "Incident_Type_Category (examples: A, B, C, D, E)\n")
	assert.Contains(t, prompt, "[Total Hours]")
	assert.Contains(t, prompt, "LIKE '%value%'")
	assert.NotContains(t, prompt, "F, G")

	prompt = NewSynthesizer(nil, 2).SystemPrompt(ds)
	assert.Contains(t, prompt, "Incident_Type_Category (examples: A, B)\n")
}

func TestSynthesizer_Synthesize(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"plain", "SELECT COUNT(*) FROM incidents", "SELECT COUNT(*) FROM incidents"},
		{"fenced", "```sql\nSELECT * FROM incidents\n```", "SELECT * FROM incidents"},
		{"fenced sqlite", "```sqlite\nSELECT 1\n```\n", "SELECT 1"},
		{"bare fence", "```\nSELECT 2\n```", "SELECT 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user string
			s := NewSynthesizer(oracle.Func(func(_ context.Context, _, u string) (string, error) {
				user = u
				return tt.out, nil
			}), 0)
			got, err := s.Synthesize(context.Background(), incidentsDataset(), "how many incidents")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "how many incidents", user)
		})
	}
}

func TestSynthesizer_Errors(t *testing.T) {
	s := NewSynthesizer(reply("```sql\n```", nil), 0)
	_, err := s.Synthesize(context.Background(), incidentsDataset(), "q")
	assert.ErrorIs(t, err, oracle.ErrMalformedOutput)

	s = NewSynthesizer(reply("", context.DeadlineExceeded), 0)
	_, err = s.Synthesize(context.Background(), incidentsDataset(), "q")
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.Synthesize(context.Background(), nil, "q")
	assert.ErrorIs(t, err, dataset.ErrNoDataset)
}
