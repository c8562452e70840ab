// Counters with time-bucketed periods.
//
// Used to enforce daily action quotas (the circuit breakers on delete and suspend), and to count distinct spam authors per instance.
package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// every increment lands in all of these buckets
var allPeriods = []string{PeriodTotal, PeriodDay, PeriodHour}

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	Increment(ctx context.Context, name, val string) error
	// Atomically increments the counter only if its current value for the period is below limit. Reports whether the increment happened.
	Reserve(ctx context.Context, name, val, period string, limit int) (bool, error)
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string) error
}

func periodBucket(name, val, period string) string {
	return periodBucketAt(name, val, period, time.Now())
}

func periodBucketAt(name, val, period string, now time.Time) string {
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		t := now.UTC().Format(time.DateOnly)
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	case PeriodHour:
		t := now.UTC().Format(time.RFC3339)[0:13]
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}
