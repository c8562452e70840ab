package engine

import (
	"context"

	"github.com/mentionmod/mentionmod/automod/event"
)

// Moderation calls against the instance.
type ActionAPI interface {
	DeleteNote(ctx context.Context, noteID string) error
	SuspendUser(ctx context.Context, userID string) error
}

// Everything the engine needs from the social network.
type API interface {
	ActionAPI
	// Author detail, relative to the bot account.
	UserDetail(ctx context.Context, userID string) (*event.AuthorProfile, error)
	// Most recent mentions of the bot account, newest first.
	RecentMentions(ctx context.Context, limit int) ([]event.Mention, error)
	GetMention(ctx context.Context, noteID string) (*event.Mention, error)
}
