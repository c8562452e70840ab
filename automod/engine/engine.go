package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentionmod/mentionmod/automod/cachestore"
	"github.com/mentionmod/mentionmod/automod/consensus"
	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/evidence"
	"github.com/mentionmod/mentionmod/automod/flagstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("engine")

// how long a processed note ID is remembered, to skip it if seen again
const SeenNoteTTL = 7 * 24 * time.Hour

const seenNoteCache = "seen-note"

// a note claimed by a process that died is retried after this long
const claimTTL = 15 * time.Minute

const claimValue = "in-progress"

// Why a mention was not judged
const (
	SkipSelf         = "self"
	SkipSeen         = "seen"
	SkipFriendlyFire = "friendly-fire"
	SkipSuspended    = "suspended"
)

type Decider interface {
	Decide(ctx context.Context, report event.EvidenceReport) consensus.Decision
}

var _ Decider = (*consensus.Coordinator)(nil)

// Runtime for the mention pipeline: pre-filters, evidence collection, consensus and moderation actions.
//
// Careful when initializing: Logger, API, Collector, Consensus and Actuator must be set. Cache and Flags are optional.
type Engine struct {
	Logger    *slog.Logger
	API       API
	Bot       event.BotIdentity
	Collector *evidence.Collector
	Consensus Decider
	Actuator  *Actuator
	Cache     cachestore.CacheStore
	Flags     flagstore.FlagStore
	// max mentions processed concurrently, by stream and backlog intake each
	MaxConcurrent int
}

// Summary of one pipeline run.
type Result struct {
	NoteID string
	// set if the mention was not judged
	Skipped  string
	Decision *consensus.Decision
	Action   *ActionReport
	Duration time.Duration
}

func (r *Result) Outcome() consensus.Outcome {
	if r.Decision == nil {
		return consensus.OutcomePending
	}
	return r.Decision.Outcome
}

func (r *Result) status() string {
	if r.Skipped != "" {
		return "skipped-" + r.Skipped
	}
	return r.Outcome().String()
}

// Runs the full pipeline for a single mention.
//
// Errors are collection failures (or a panic): the mention was not judged and will be retried if it shows up again. Nothing that happens here affects other mentions.
func (eng *Engine) ProcessMention(ctx context.Context, m event.Mention) (res *Result, err error) {
	logger := eng.Logger.With("noteID", m.NoteID, "userID", m.AuthorID, "author", m.AuthorHandle())

	start := time.Now()
	res = &Result{NoteID: m.NoteID}
	defer func() {
		mentionProcessDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			res.Duration = time.Since(start)
			mentionProcessCount.WithLabelValues(res.status()).Inc()
		}
	}()

	// similar to an HTTP server, we want to recover any panics from pipeline execution
	defer func() {
		if r := recover(); r != nil {
			logger.Error("mention processing exception", "err", r)
			mentionErrorCount.WithLabelValues("panic").Inc()
			res = nil
			err = fmt.Errorf("panic processing note %s: %v", m.NoteID, r)
			eng.release(ctx, logger, m.NoteID)
		}
	}()

	ctx, span := tracer.Start(ctx, "ProcessMention")
	defer span.End()
	span.SetAttributes(attribute.String("noteID", m.NoteID))

	if eng.Bot.ID != "" && m.AuthorID == eng.Bot.ID {
		res.Skipped = SkipSelf
		return res, nil
	}

	// stream and backlog can race on the same note; only one of them proceeds
	if !eng.claim(ctx, logger, m.NoteID) {
		logger.Debug("skipping already processed note")
		res.Skipped = SkipSeen
		return res, nil
	}

	profile, err := eng.Collector.FetchProfile(ctx, m)
	if err != nil {
		mentionErrorCount.WithLabelValues("profile").Inc()
		logger.Error("failed to collect evidence", "err", err)
		eng.release(ctx, logger, m.NoteID)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("friendlyFire", profile.HasRelationship()))

	if profile.HasRelationship() {
		logger.Info("skipping mention from related account", "followsBot", profile.IsFollowingBot, "followedByBot", profile.IsFollowedByBot)
		res.Skipped = SkipFriendlyFire
		eng.markSeen(ctx, logger, m.NoteID, res.status())
		return res, nil
	}
	if profile.IsSuspended {
		logger.Info("skipping mention from suspended account")
		res.Skipped = SkipSuspended
		eng.markSeen(ctx, logger, m.NoteID, res.status())
		return res, nil
	}

	report, err := eng.Collector.Collect(ctx, m, *profile)
	if err != nil {
		mentionErrorCount.WithLabelValues("evidence").Inc()
		logger.Error("failed to collect evidence", "err", err)
		eng.release(ctx, logger, m.NoteID)
		return nil, err
	}

	decision := eng.Consensus.Decide(ctx, report)
	res.Decision = &decision
	if decision.Outcome == consensus.OutcomeInconclusive && eng.Flags != nil {
		if err := eng.Flags.Add(ctx, m.NoteID, []string{flagstore.FlagInconclusive}); err != nil {
			logger.Error("failed to persist review flag", "err", err)
		}
	}

	res.Action = eng.Actuator.Act(ctx, m, decision.Outcome)
	eng.markSeen(ctx, logger, m.NoteID, res.status())
	eng.canonicalLogLine(logger, res)
	return res, nil
}

// Returns false if the note was already processed, or is being processed right now.
func (eng *Engine) claim(ctx context.Context, logger *slog.Logger, noteID string) bool {
	if eng.Cache == nil {
		return true
	}
	ok, err := eng.Cache.Claim(ctx, seenNoteCache, noteID, claimValue, claimTTL)
	if err != nil {
		// processing twice is better than never
		logger.Warn("failed to claim note in seen-note cache", "err", err)
		return true
	}
	return ok
}

// Drops the claim so the note gets another chance.
func (eng *Engine) release(ctx context.Context, logger *slog.Logger, noteID string) {
	if eng.Cache == nil {
		return
	}
	if err := eng.Cache.Purge(ctx, seenNoteCache, noteID); err != nil {
		logger.Warn("failed to release seen-note claim", "err", err)
	}
}

func (eng *Engine) markSeen(ctx context.Context, logger *slog.Logger, noteID, status string) {
	if eng.Cache == nil {
		return
	}
	if err := eng.Cache.Set(ctx, seenNoteCache, noteID, status); err != nil {
		logger.Warn("failed to write seen-note cache", "err", err)
	}
}

func (eng *Engine) canonicalLogLine(logger *slog.Logger, res *Result) {
	judges := []string{}
	attempts := 0
	if res.Decision != nil {
		for _, j := range res.Decision.Judges {
			judges = append(judges, j.Judge)
			attempts += j.Attempts
		}
	}
	args := []any{
		"outcome", res.Outcome().String(),
		"judges", judges,
		"judgeAttempts", attempts,
	}
	if a := res.Action; a != nil {
		args = append(args,
			"deleted", a.Deleted,
			"suspended", a.Suspended,
			"suppressed", a.Suppressed,
			"actionErrors", len(a.Errors),
		)
	}
	logger.Info("canonical-mention-line", args...)
}
