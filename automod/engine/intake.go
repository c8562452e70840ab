package engine

import (
	"context"
	"fmt"

	"github.com/mentionmod/mentionmod/automod/event"

	"golang.org/x/sync/errgroup"
)

const DefaultMaxConcurrent = 4

// Runs mention pipelines concurrently, up to a fixed limit. Every mention is isolated: failures are logged and never stop the intake.
type Intake struct {
	eng   *Engine
	ctx   context.Context
	group errgroup.Group
}

func (eng *Engine) NewIntake(ctx context.Context) *Intake {
	limit := eng.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	in := &Intake{eng: eng, ctx: ctx}
	in.group.SetLimit(limit)
	return in
}

// Starts processing a mention. Blocks while the concurrency limit is reached.
func (in *Intake) Submit(m event.Mention) {
	in.group.Go(func() error {
		// errors are already logged inside the pipeline
		_, _ = in.eng.ProcessMention(in.ctx, m)
		return nil
	})
}

// Waits for all submitted mentions to finish.
func (in *Intake) Wait() {
	_ = in.group.Wait()
}

type BacklogStats struct {
	Fetched int
	Failed  int
	Results []*Result
}

// One-shot scan: fetches the most recent mentions and processes each one independently.
//
// Returns an error only if the mention list itself could not be fetched.
func (eng *Engine) ProcessBacklog(ctx context.Context, limit int) (*BacklogStats, error) {
	mentions, err := eng.API.RecentMentions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching recent mentions: %w", err)
	}
	eng.Logger.Info("processing mention backlog", "count", len(mentions))

	stats := &BacklogStats{
		Fetched: len(mentions),
		Results: make([]*Result, len(mentions)),
	}
	failed := make([]bool, len(mentions))

	parallel := eng.MaxConcurrent
	if parallel <= 0 {
		parallel = DefaultMaxConcurrent
	}
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, m := range mentions {
		g.Go(func() error {
			res, err := eng.ProcessMention(ctx, m)
			if err != nil {
				failed[i] = true
				return nil
			}
			stats.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		if f {
			stats.Failed++
		}
	}
	return stats, nil
}

// Fetches a single note by ID and runs it through the pipeline, regardless of whether it was seen before.
func (eng *Engine) ProcessNote(ctx context.Context, noteID string) (*Result, error) {
	m, err := eng.API.GetMention(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("fetching note: %w", err)
	}
	if eng.Cache != nil {
		if err := eng.Cache.Purge(ctx, seenNoteCache, noteID); err != nil {
			eng.Logger.Warn("failed to purge seen-note cache", "noteID", noteID, "err", err)
		}
	}
	return eng.ProcessMention(ctx, *m)
}
