package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/mentionmod/mentionmod/automod/engine"
	"github.com/mentionmod/mentionmod/misskey"

	"go.opentelemetry.io/otel/attribute"
)

// a connection which lasted this long resets the reconnect backoff
const stableConnection = time.Minute

func backoff(retries int, max int) time.Duration {
	dur := 1 << retries
	if dur > max {
		dur = max
	}

	jitter := time.Millisecond * time.Duration(rand.Intn(1000))
	return time.Second*time.Duration(dur) + jitter
}

// Subscribes to the streaming API and feeds every mention into the pipeline, reconnecting until the context is cancelled.
//
// Mentions are processed concurrently (bounded); the stream read blocks while the limit is reached. In-flight mentions are drained before returning.
func (s *Server) RunConsumer(ctx context.Context) error {
	in := s.engine.NewIntake(ctx)
	defer in.Wait()

	sc := &misskey.StreamCallbacks{
		Mention: func(_ context.Context, note *misskey.Note) error {
			streamMentionsReceived.Inc()
			in.Submit(engine.MentionFromNote(note))
			return nil
		},
	}

	retries := 0
	for {
		start := time.Now()
		err := s.client.Subscribe(ctx, s.logger, sc)
		if ctx.Err() != nil {
			s.logger.Info("stream consumer shutting down")
			return nil
		}
		streamDisconnects.Inc()
		if time.Since(start) > stableConnection {
			retries = 0
		}
		wait := backoff(retries, 60)
		retries++
		s.logger.Warn("streaming API disconnected, reconnecting", "err", err, "retries", retries, "wait", wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// One-shot scan of the most recent mentions.
func (s *Server) RunBacklog(ctx context.Context, limit int) error {
	ctx, span := tracer.Start(ctx, "RunBacklog")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	stats, err := s.engine.ProcessBacklog(ctx, limit)
	if err != nil {
		backlogScans.WithLabelValues("error").Inc()
		return err
	}
	backlogScans.WithLabelValues("ok").Inc()

	outcomes := make(map[string]int)
	for _, res := range stats.Results {
		if res == nil {
			continue
		}
		if res.Skipped != "" {
			outcomes["skipped-"+res.Skipped]++
			continue
		}
		outcomes[res.Outcome().String()]++
	}
	s.logger.Info("backlog scan complete", "fetched", stats.Fetched, "failed", stats.Failed, "outcomes", outcomes)
	return nil
}
