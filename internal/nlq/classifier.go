// Package nlq turns a natural-language question about the active dataset
// into a SQL query and its result.
package nlq

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/logging"
	"github.com/KaramelBytes/tabletalk/internal/oracle"
)

const classifierSystem = "You classify intent. Output ONLY YES or NO."

const classifierTemplate = `
You are an intent classifier.

Decide whether the user's question is related to analyzing or querying a dataset.

Respond with ONLY one word:
YES → if the question is about data, columns, values, counts, filters, trends, summaries.
NO → if the question is greeting, small talk, names, personal questions, commands, or anything unrelated.

Question:
%s
`

// Classifier decides whether a question can be answered from the dataset.
type Classifier struct {
	oracle oracle.Oracle
	log    *zap.Logger
}

// NewClassifier returns a Classifier backed by o.
func NewClassifier(o oracle.Oracle, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{oracle: o, log: log}
}

// IsOnTopic is true only when the oracle answers YES. Any other text is a
// negative answer; a failed call is an error.
func (c *Classifier) IsOnTopic(ctx context.Context, question string) (bool, error) {
	out, err := c.oracle.Complete(ctx, classifierSystem, fmt.Sprintf(classifierTemplate, question))
	if err != nil {
		return false, unavailable(err)
	}
	ok, err := oracle.ParseVerdict(out)
	if err != nil {
		logging.FromContext(ctx, c.log).Debug("classifier output treated as NO", zap.String("output", out))
		return false, nil
	}
	return ok, nil
}

func unavailable(err error) error {
	if errors.Is(err, oracle.ErrUnavailable) {
		return err
	}
	return &oracle.UnavailableError{Err: err}
}
