// Per-note review flags.
//
// Notes the bot could not decide on, or decided on but did not act on, are flagged here for a human to look at.
package flagstore

import (
	"context"
)

const (
	// no judge reached a well-formed verdict
	FlagInconclusive = "inconclusive"
	// consensus was spam, but the action was suppressed (readonly mode or a circuit breaker)
	FlagSuppressedAction = "suppressed-action"
	// a delete or suspend call failed
	FlagActionFailed = "action-failed"
)

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	Remove(ctx context.Context, key string, flags []string) error
	// Every key with at least one flag, sorted. This is the review queue.
	List(ctx context.Context) ([]string, error)
}
