// Language-model judges which classify a single evidence report as spam or not.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("judge")

// Wraps one language-model backend behind a fixed two-step protocol: first ask for free-text reasoning about the report, then pass that reasoning back explicitly and ask for a strict JSON decision.
//
// A Judge carries no state between evaluations. Each call builds a fresh conversation.
type Judge struct {
	Backend    llm.Backend
	Categories CategorySet
	Logger     *slog.Logger
}

func New(backend llm.Backend, categories CategorySet, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	if len(categories) == 0 {
		categories = BinaryCategories
	}
	return &Judge{
		Backend:    backend,
		Categories: categories,
		Logger:     logger,
	}
}

func (j *Judge) Name() string {
	return j.Backend.Name()
}

// Runs one evaluation attempt.
//
// Returns an error wrapping ErrMalformedVerdict if the decision output does not parse; other errors are backend failures. No partial recovery is attempted on malformed output.
func (j *Judge) Evaluate(ctx context.Context, report event.EvidenceReport) (*Verdict, error) {
	ctx, span := tracer.Start(ctx, "Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("judge", j.Name()))

	start := time.Now()
	defer func() {
		judgeDuration.WithLabelValues(j.Name()).Observe(time.Since(start).Seconds())
	}()

	system := systemPrompt(j.Categories)
	first := llm.Turn{Role: llm.RoleUser, Text: reasoningPrompt(report)}

	reasoning, err := j.Backend.Complete(ctx, llm.Request{
		System: system,
		Turns:  []llm.Turn{first},
	})
	if err != nil {
		judgeAttempts.WithLabelValues(j.Name(), "error").Inc()
		return nil, fmt.Errorf("judge %s reasoning step: %w", j.Name(), err)
	}

	raw, err := j.Backend.Complete(ctx, llm.Request{
		System: system,
		Turns: []llm.Turn{
			first,
			{Role: llm.RoleModel, Text: reasoning},
			{Role: llm.RoleUser, Text: decisionPrompt(j.Categories)},
		},
		JSON: true,
	})
	if err != nil {
		judgeAttempts.WithLabelValues(j.Name(), "error").Inc()
		return nil, fmt.Errorf("judge %s decision step: %w", j.Name(), err)
	}

	v, err := ParseVerdict(raw, j.Categories)
	if err != nil {
		judgeAttempts.WithLabelValues(j.Name(), "malformed").Inc()
		j.Logger.Debug("malformed judge output", "judge", j.Name(), "err", err, "raw", raw)
		return nil, fmt.Errorf("judge %s: %w", j.Name(), err)
	}
	judgeAttempts.WithLabelValues(j.Name(), "ok").Inc()
	judgeResults.WithLabelValues(j.Name(), string(v.Result)).Inc()
	span.SetAttributes(attribute.String("result", string(v.Result)))
	return v, nil
}
