// Unanimity protocol over an ordered list of judges.
package consensus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/judge"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("consensus")

const DefaultMaxAttempts = 3

// Subset of *judge.Judge used by the coordinator.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, report event.EvidenceReport) (*judge.Verdict, error)
}

var _ Evaluator = (*judge.Judge)(nil)

// Record of one judge's participation in a decision.
type JudgeResult struct {
	Judge    string
	Attempts int
	// nil if every attempt failed
	Verdict *judge.Verdict
}

type Decision struct {
	Outcome Outcome
	Judges  []JudgeResult
}

// Number of distinct judges invoked.
func (d *Decision) JudgesInvoked() int {
	return len(d.Judges)
}

// Asks judges, in order, whether a report is spam. Every judge must say "spam" for the outcome to be SPAM; the first dissent stops the loop. Judges are never run concurrently.
type Coordinator struct {
	Judges []Evaluator
	// attempts per judge to get a well-formed verdict; zero means DefaultMaxAttempts
	MaxAttempts int
	Logger      *slog.Logger
}

func NewCoordinator(judges []Evaluator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Judges:      judges,
		MaxAttempts: DefaultMaxAttempts,
		Logger:      logger,
	}
}

// Runs the protocol and returns the outcome. Never returns PENDING.
//
// Backend failures count as failed attempts, the same as malformed output. If the context is cancelled the outcome is INCONCLUSIVE.
func (c *Coordinator) Decide(ctx context.Context, report event.EvidenceReport) Decision {
	ctx, span := tracer.Start(ctx, "Decide")
	defer span.End()

	d := c.decide(ctx, report)
	span.SetAttributes(
		attribute.String("outcome", d.Outcome.String()),
		attribute.Int("judges", d.JudgesInvoked()),
	)
	consensusOutcomes.WithLabelValues(d.Outcome.String()).Inc()
	return d
}

func (c *Coordinator) decide(ctx context.Context, report event.EvidenceReport) Decision {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	d := Decision{Outcome: OutcomePending}
	if len(c.Judges) == 0 {
		logger.Warn("no judges configured, refusing to classify")
		d.Outcome = OutcomeInconclusive
		return d
	}

	for _, j := range c.Judges {
		res := JudgeResult{Judge: j.Name()}
		for res.Attempts < maxAttempts {
			if ctx.Err() != nil {
				break
			}
			res.Attempts++
			v, err := j.Evaluate(ctx, report)
			if err != nil {
				if errors.Is(err, judge.ErrMalformedVerdict) {
					logger.Info("judge returned malformed verdict", "judge", j.Name(), "attempt", res.Attempts, "err", err)
				} else {
					logger.Warn("judge evaluation failed", "judge", j.Name(), "attempt", res.Attempts, "err", err)
				}
				continue
			}
			res.Verdict = v
			break
		}
		d.Judges = append(d.Judges, res)

		if res.Verdict == nil {
			logger.Warn("judge never produced a well-formed verdict", "judge", j.Name(), "attempts", res.Attempts)
			d.Outcome = OutcomeInconclusive
			return d
		}
		if !res.Verdict.IsSpam() {
			logger.Info("judge dissented", "judge", j.Name(), "result", res.Verdict.Result)
			d.Outcome = OutcomeNotSpam
			return d
		}
	}
	d.Outcome = OutcomeSpam
	return d
}
