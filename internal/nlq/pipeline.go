package nlq

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/logging"
	"github.com/KaramelBytes/tabletalk/internal/oracle"
	"github.com/KaramelBytes/tabletalk/internal/resolve"
	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is required")

// OffTopicMessage is returned in place of a result for unrelated questions.
const OffTopicMessage = "Please ask a question related to the uploaded file."

// Store is the part of the dataset store the pipeline reads from.
type Store interface {
	Snapshot() (*dataset.Dataset, error)
	Execute(ctx context.Context, snapshot *dataset.Dataset, query string) (*sqlstore.Result, error)
}

// Answer is the outcome of one question.
type Answer struct {
	Question          string         `json:"question"`
	RewrittenQuestion string         `json:"rewritten_question,omitempty"`
	Query             string         `json:"query,omitempty"`
	Columns           []string       `json:"columns"`
	Result            []sqlstore.Row `json:"result"`
	TableIdentifier   string         `json:"table_identifier"`
	OnTopic           bool           `json:"on_topic"`
	Message           string         `json:"message,omitempty"`
}

// Options tune the pipeline stages.
type Options struct {
	Rules         []Rule
	Cutoff        float64
	PromptSamples int
}

// Pipeline runs classify, rewrite, synthesize and execute for a question.
type Pipeline struct {
	store       Store
	classifier  *Classifier
	rewriter    *Rewriter
	synthesizer *Synthesizer
	log         *zap.Logger
}

// NewPipeline wires the stages around store and o.
func NewPipeline(store Store, o oracle.Oracle, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:       store,
		classifier:  NewClassifier(o, log),
		rewriter:    NewRewriter(opts.Rules, resolve.New(opts.Cutoff)),
		synthesizer: NewSynthesizer(o, opts.PromptSamples),
		log:         log,
	}
}

// Ask answers question against the dataset active when the call starts.
// The snapshot is read once; if the dataset is replaced before execution the
// call fails with dataset.ErrDatasetChanged.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()
	log := logging.FromContext(ctx, p.log)

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	snap, err := p.store.Snapshot()
	if err != nil {
		return nil, err
	}
	ans := &Answer{
		Question:        question,
		Columns:         []string{},
		Result:          []sqlstore.Row{},
		TableIdentifier: snap.Table,
	}

	onTopic, err := p.classifier.IsOnTopic(ctx, question)
	if err != nil {
		log.Warn("intent classification failed", zap.String("question", question), zap.Error(err))
		return nil, err
	}
	if !onTopic {
		ans.Message = OffTopicMessage
		log.Info("question off topic", zap.String("question", question))
		return ans, nil
	}
	ans.OnTopic = true

	ans.RewrittenQuestion = p.rewriter.Rewrite(snap, question)
	log.Debug("question rewritten", zap.String("original", question), zap.String("rewritten", ans.RewrittenQuestion))

	query, err := p.synthesizer.Synthesize(ctx, snap, ans.RewrittenQuestion)
	if err != nil {
		log.Warn("query synthesis failed", zap.String("question", ans.RewrittenQuestion), zap.Error(err))
		return nil, err
	}
	ans.Query = query

	res, err := p.store.Execute(ctx, snap, query)
	if err != nil {
		log.Warn("query execution failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	ans.Columns = res.Columns
	ans.Result = res.Rows

	log.Info("question answered",
		zap.String("table", snap.Table),
		zap.String("question", question),
		zap.String("rewritten", ans.RewrittenQuestion),
		zap.String("query", query),
		zap.Int("rows", len(res.Rows)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ans, nil
}
