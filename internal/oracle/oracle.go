// Package oracle puts the language-model service behind a single
// complete(system, user) call and validates what comes back.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/ai"
	"github.com/KaramelBytes/tabletalk/internal/utils"
)

var (
	// ErrUnavailable matches every failure to obtain a completion.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrMalformedOutput matches completions that do not have the expected shape.
	ErrMalformedOutput = errors.New("oracle returned malformed output")
)

// UnavailableError wraps the transport or provider failure.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// MalformedOutputError reports a completion that failed validation.
type MalformedOutputError struct {
	Output string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("oracle returned malformed output: %s", e.Reason)
}

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

// Oracle produces a completion for a system and user prompt at temperature 0.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, system, user string) (string, error)

func (f Func) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// RuntimeOracle calls an ai.Runtime with a bounded timeout.
type RuntimeOracle struct {
	rt      ai.Runtime
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// New wraps rt. A non-positive timeout leaves the caller's context as the
// only bound.
func New(rt ai.Runtime, model string, timeout time.Duration, log *zap.Logger) *RuntimeOracle {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuntimeOracle{rt: rt, model: model, timeout: timeout, log: log}
}

// Model returns the configured model name.
func (o *RuntimeOracle) Model() string { return o.model }

func (o *RuntimeOracle) Complete(ctx context.Context, system, user string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	var msgs []ai.Message
	if system != "" {
		msgs = append(msgs, ai.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, ai.Message{Role: "user", Content: user})

	start := time.Now()
	resp, err := o.rt.Generate(ctx, ai.GenerateRequest{Model: o.model, Messages: msgs, Temperature: 0})
	if err != nil {
		o.log.Warn("oracle call failed", zap.String("model", o.model), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", &UnavailableError{Err: err}
	}
	o.log.Debug("oracle call",
		zap.String("model", o.model),
		zap.String("provider_request_id", resp.RequestID),
		zap.Int("prompt_tokens_est", utils.CountTokens(system)+utils.CountTokens(user)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.Text(), nil
}
