package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/mentionmod/mentionmod/automod/consensus"
	"github.com/mentionmod/mentionmod/automod/countstore"
	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/flagstore"
	"github.com/mentionmod/mentionmod/misskey"
)

var (
	// number of notes the bot can delete per day (circuit breaker)
	QuotaDeleteDay = 200
	// number of accounts the bot can suspend per day (circuit breaker)
	QuotaSuspendDay = 50
)

const (
	quotaCounter       = "automod-quota"
	spamAuthorsCounter = "spam-authors"
)

// Why an action was not taken
const (
	SuppressedReadOnly  = "readonly"
	SuppressedQuota     = "quota"
	SuppressedIncapable = "suspend-unavailable"
)

// What the actuator did for one mention.
type ActionReport struct {
	Mention event.Mention
	Outcome consensus.Outcome

	DeleteAttempted  bool
	Deleted          bool
	SuspendAttempted bool
	Suspended        bool
	// action name ("delete", "suspend") to reason
	Suppressed map[string]string
	Errors     []error
}

// True if an action was held back for a reason other than a missing suspend capability.
func (r *ActionReport) needsReview() bool {
	for _, reason := range r.Suppressed {
		if reason != SuppressedIncapable {
			return true
		}
	}
	return false
}

func (r *ActionReport) suppress(action, reason string) {
	if r.Suppressed == nil {
		r.Suppressed = make(map[string]string)
	}
	r.Suppressed[action] = reason
}

// Deletes spam notes and suspends their authors.
//
// Both calls are fire-and-forget: failures are logged and flagged, never retried, and a failed suspend does not roll back the delete.
//
// Suspension is tracked as a runtime capability. It starts enabled unless configured off, and is switched off the first time the instance refuses a suspend with a permission error. Some deployments block the admin suspend endpoint for bot accounts entirely.
type Actuator struct {
	API      ActionAPI
	Counters countstore.CountStore
	Flags    flagstore.FlagStore
	Notifier Notifier
	// compute outcomes but never call delete or suspend
	ReadOnly bool
	Logger   *slog.Logger

	suspendCapable atomic.Bool
}

func NewActuator(api ActionAPI, counters countstore.CountStore, flags flagstore.FlagStore, suspend bool, logger *slog.Logger) *Actuator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Actuator{
		API:      api,
		Counters: counters,
		Flags:    flags,
		Logger:   logger,
	}
	a.SetSuspendCapable(suspend)
	return a
}

func (a *Actuator) SuspendCapable() bool {
	return a.suspendCapable.Load()
}

func (a *Actuator) SetSuspendCapable(v bool) {
	a.suspendCapable.Store(v)
	if v {
		suspendCapableGauge.Set(1)
	} else {
		suspendCapableGauge.Set(0)
	}
}

// Acts on a consensus outcome. Only SPAM leads to any calls; every other outcome is a no-op.
func (a *Actuator) Act(ctx context.Context, m event.Mention, outcome consensus.Outcome) *ActionReport {
	rep := &ActionReport{
		Mention: m,
		Outcome: outcome,
	}
	if outcome != consensus.OutcomeSpam {
		return rep
	}
	logger := a.Logger.With("noteID", m.NoteID, "userID", m.AuthorID)

	if a.Counters != nil {
		if err := a.Counters.IncrementDistinct(ctx, spamAuthorsCounter, hostBucket(m.AuthorHost), m.AuthorID); err != nil {
			logger.Error("failed to count spam author", "err", err)
		}
	}

	if a.ReadOnly {
		logger.Info("readonly mode, not acting on spam")
		rep.suppress("delete", SuppressedReadOnly)
		rep.suppress("suspend", SuppressedReadOnly)
		a.flag(ctx, logger, m.NoteID, flagstore.FlagSuppressedAction)
		a.notify(ctx, logger, rep)
		return rep
	}

	if a.circuitBreak(ctx, logger, "delete", QuotaDeleteDay) {
		rep.suppress("delete", SuppressedQuota)
	} else {
		rep.DeleteAttempted = true
		if err := a.API.DeleteNote(ctx, m.NoteID); err != nil {
			logger.Error("failed to delete note", "err", err)
			actionCount.WithLabelValues("delete", "error").Inc()
			rep.Errors = append(rep.Errors, err)
		} else {
			logger.Info("deleted spam note")
			actionCount.WithLabelValues("delete", "ok").Inc()
			rep.Deleted = true
		}
	}

	switch {
	case !a.SuspendCapable():
		logger.Info("suspension unavailable, not suspending spam author")
		rep.suppress("suspend", SuppressedIncapable)
	case a.circuitBreak(ctx, logger, "suspend", QuotaSuspendDay):
		rep.suppress("suspend", SuppressedQuota)
	default:
		rep.SuspendAttempted = true
		if err := a.API.SuspendUser(ctx, m.AuthorID); err != nil {
			logger.Error("failed to suspend user", "err", err)
			actionCount.WithLabelValues("suspend", "error").Inc()
			rep.Errors = append(rep.Errors, err)
			if misskey.IsPermissionDenied(err) && a.suspendCapable.CompareAndSwap(true, false) {
				suspendCapableGauge.Set(0)
				logger.Warn("instance refused suspension, disabling suspend for the rest of this run")
			}
		} else {
			logger.Info("suspended spam author")
			actionCount.WithLabelValues("suspend", "ok").Inc()
			rep.Suspended = true
		}
	}

	if rep.needsReview() {
		a.flag(ctx, logger, m.NoteID, flagstore.FlagSuppressedAction)
	}
	if len(rep.Errors) > 0 {
		a.flag(ctx, logger, m.NoteID, flagstore.FlagActionFailed)
	}
	a.notify(ctx, logger, rep)
	return rep
}

// Returns true if the daily quota for the action is used up. Otherwise the action is counted against the quota.
func (a *Actuator) circuitBreak(ctx context.Context, logger *slog.Logger, action string, quota int) bool {
	if a.Counters == nil {
		return false
	}
	ok, err := a.Counters.Reserve(ctx, quotaCounter, action, countstore.PeriodDay, quota)
	if err != nil {
		// fail closed
		logger.Error("failed to reserve action quota", "action", action, "err", err)
		return true
	}
	if !ok {
		logger.Warn("CIRCUIT BREAKER: moderation actions", "action", action, "quota", quota)
		circuitBreakerTrips.WithLabelValues(action).Inc()
		return true
	}
	return false
}

func (a *Actuator) flag(ctx context.Context, logger *slog.Logger, noteID, flag string) {
	if a.Flags == nil {
		return
	}
	if err := a.Flags.Add(ctx, noteID, []string{flag}); err != nil {
		logger.Error("failed to persist review flag", "flag", flag, "err", err)
	}
}

func (a *Actuator) notify(ctx context.Context, logger *slog.Logger, rep *ActionReport) {
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.SendAction(ctx, rep); err != nil {
		logger.Error("sending notification", "err", err)
	}
}

func hostBucket(host string) string {
	if host == "" {
		return "local"
	}
	return host
}
