// Mention moderation engine for a Misskey bot account.
//
// Every note which mentions the bot runs through a fixed pipeline: pre-filters (the bot itself, notes already seen, friendly fire, suspended authors), evidence collection, a unanimity decision by language-model judges, and finally moderation actions (delete the note, suspend the author) guarded by daily quotas. Mentions are processed independently; a failure or panic in one never affects another.
//
// Mentions arrive either from the streaming API (see Intake) or from a one-shot scan of recent mentions (ProcessBacklog). See `cmd/mentionmod` for a daemon built on this package.
package engine
