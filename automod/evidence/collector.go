// Gathers everything known about a mention and renders it into an evidence report for judges.
package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/visual"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("evidence")

// Source of author detail, relative to the bot account.
type ProfileSource interface {
	UserDetail(ctx context.Context, userID string) (*event.AuthorProfile, error)
}

type Collector struct {
	Profiles   ProfileSource
	Extractors []visual.Extractor
	Bot        event.BotIdentity
	// Upper bound on a single extractor call. Zero means no limit beyond the context.
	ExtractTimeout time.Duration
	Logger         *slog.Logger
}

func NewCollector(profiles ProfileSource, extractors []visual.Extractor, bot event.BotIdentity, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		Profiles:       profiles,
		Extractors:     extractors,
		Bot:            bot,
		ExtractTimeout: 2 * time.Minute,
		Logger:         logger,
	}
}

// Resolves the author profile. Any failure is a collection failure: the mention should not be processed further.
func (c *Collector) FetchProfile(ctx context.Context, m event.Mention) (*event.AuthorProfile, error) {
	ctx, span := tracer.Start(ctx, "FetchProfile")
	defer span.End()

	p, err := c.Profiles.UserDetail(ctx, m.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("fetching author profile (userID=%s): %w", m.AuthorID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("fetching author profile (userID=%s): empty response", m.AuthorID)
	}
	return p, nil
}

// Runs attachment extraction and formats the report. Extraction failures only shrink the evidence; an error is returned only if the context is done.
func (c *Collector) Collect(ctx context.Context, m event.Mention, p event.AuthorProfile) (event.EvidenceReport, error) {
	ctx, span := tracer.Start(ctx, "Collect")
	defer span.End()

	ocr := c.Extract(ctx, m)
	span.SetAttributes(
		attribute.Int("attachments", len(m.Attachments)),
		attribute.Int("ocr_results", len(ocr)),
	)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return FormatReport(m, p, ocr, c.Bot), nil
}

// Runs every extractor over every image attachment concurrently, one goroutine per (extractor, attachment) pair. Failed pairs are logged and dropped.
//
// Results are returned in attachment order, then extractor order.
func (c *Collector) Extract(ctx context.Context, m event.Mention) []event.OcrResult {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(c.Extractors) == 0 {
		return nil
	}

	slots := make([]*event.OcrResult, len(m.Attachments)*len(c.Extractors))
	// a plain group: failures are recorded per pair and never cancel siblings
	var g errgroup.Group
	for ai, att := range m.Attachments {
		if !att.IsImage() {
			logger.Debug("skipping non-image attachment", "attachment", ai, "type", att.Type)
			continue
		}
		for ei, ex := range c.Extractors {
			slot := ai*len(c.Extractors) + ei
			g.Go(func() error {
				ectx := ctx
				if c.ExtractTimeout > 0 {
					var cancel context.CancelFunc
					ectx, cancel = context.WithTimeout(ctx, c.ExtractTimeout)
					defer cancel()
				}
				text, err := ex.Extract(ectx, att.URL)
				if err != nil {
					extractFailures.WithLabelValues(ex.Name()).Inc()
					logger.Warn("attachment extraction failed", "extractor", ex.Name(), "attachment", ai, "err", err)
					return nil
				}
				slots[slot] = &event.OcrResult{
					Extractor:  ex.Name(),
					Attachment: ai,
					Text:       text,
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	var out []event.OcrResult
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
