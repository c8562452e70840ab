package engine

import (
	"context"
	"net/url"

	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/misskey"
)

// Implements API on top of the Misskey REST client.
type MisskeyAPI struct {
	Client *misskey.Client
}

var _ API = (*MisskeyAPI)(nil)

func (a *MisskeyAPI) UserDetail(ctx context.Context, userID string) (*event.AuthorProfile, error) {
	u, err := a.Client.UsersShow(ctx, userID)
	if err != nil {
		return nil, err
	}
	profileFetches.Inc()
	return ProfileFromUser(u), nil
}

func (a *MisskeyAPI) RecentMentions(ctx context.Context, limit int) ([]event.Mention, error) {
	notes, err := a.Client.NotesMentions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]event.Mention, 0, len(notes))
	for i := range notes {
		out = append(out, MentionFromNote(&notes[i]))
	}
	return out, nil
}

func (a *MisskeyAPI) GetMention(ctx context.Context, noteID string) (*event.Mention, error) {
	n, err := a.Client.NotesShow(ctx, noteID)
	if err != nil {
		return nil, err
	}
	m := MentionFromNote(n)
	return &m, nil
}

func (a *MisskeyAPI) DeleteNote(ctx context.Context, noteID string) error {
	return a.Client.NotesDelete(ctx, noteID)
}

func (a *MisskeyAPI) SuspendUser(ctx context.Context, userID string) error {
	return a.Client.AdminSuspendUser(ctx, userID)
}

// Logs in (verifies the token) and returns the bot's own identity.
func (a *MisskeyAPI) Login(ctx context.Context) (*event.BotIdentity, error) {
	me, err := a.Client.I(ctx)
	if err != nil {
		return nil, err
	}
	bot := &event.BotIdentity{
		ID:       me.ID,
		Username: me.Username,
	}
	if me.Name != nil {
		bot.Name = *me.Name
	}
	if u, err := url.Parse(a.Client.Host); err == nil {
		bot.Host = u.Hostname()
	}
	return bot, nil
}

func ProfileFromUser(u *misskey.UserDetailed) *event.AuthorProfile {
	return &event.AuthorProfile{
		FollowersCount:  u.FollowersCount,
		FollowingCount:  u.FollowingCount,
		IsFollowingBot:  u.IsFollowed,
		IsFollowedByBot: u.IsFollowing,
		IsSuspended:     u.IsSuspended,
		Description:     u.Description,
	}
}

// Converts a note as delivered by the stream or REST API. A content warning, if any, is kept as part of the text.
func MentionFromNote(n *misskey.Note) event.Mention {
	m := event.Mention{
		NoteID:         n.ID,
		AuthorID:       n.UserID,
		AuthorUsername: n.User.Username,
	}
	if m.AuthorID == "" {
		m.AuthorID = n.User.ID
	}
	if n.User.Name != nil {
		m.AuthorName = *n.User.Name
	}
	if n.User.Host != nil {
		m.AuthorHost = *n.User.Host
	}
	if n.CW != nil && *n.CW != "" {
		m.Text = "[CW: " + *n.CW + "]\n"
	}
	if n.Text != nil {
		m.Text += *n.Text
	}
	for _, f := range n.Files {
		m.Attachments = append(m.Attachments, event.Attachment{
			URL:  f.URL,
			Type: f.Type,
			Name: f.Name,
		})
	}
	return m
}
