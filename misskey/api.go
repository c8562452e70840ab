package misskey

import (
	"context"
	"fmt"
)

// Fetches the authenticated account. This doubles as the login handshake: it fails if the token is invalid.
func (c *Client) I(ctx context.Context) (*MeDetailed, error) {
	var out MeDetailed
	if err := c.Do(ctx, "i", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UsersShow(ctx context.Context, userID string) (*UserDetailed, error) {
	var out UserDetailed
	body := map[string]any{"userId": userID}
	if err := c.Do(ctx, "users/show", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Largest page the instance accepts for notes/mentions
const MentionsPageLimit = 100

// Lists the most recent notes mentioning the authenticated account, newest first.
//
// Limits above MentionsPageLimit are fetched as several pages, walking back with "untilId".
func (c *Client) NotesMentions(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid mentions limit: %d", limit)
	}
	var out []Note
	untilID := ""
	for len(out) < limit {
		pageSize := min(limit-len(out), MentionsPageLimit)
		body := map[string]any{"limit": pageSize}
		if untilID != "" {
			body["untilId"] = untilID
		}
		var page []Note
		if err := c.Do(ctx, "notes/mentions", body, &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			break
		}
		untilID = page[len(page)-1].ID
	}
	return out, nil
}

func (c *Client) NotesShow(ctx context.Context, noteID string) (*Note, error) {
	var out Note
	body := map[string]any{"noteId": noteID}
	if err := c.Do(ctx, "notes/show", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Requires the bot account to be the note author, or a moderator.
func (c *Client) NotesDelete(ctx context.Context, noteID string) error {
	body := map[string]any{"noteId": noteID}
	return c.Do(ctx, "notes/delete", body, nil)
}

// Requires the bot account to hold a role with the suspend-user permission. Some deployments block this endpoint for bots entirely.
func (c *Client) AdminSuspendUser(ctx context.Context, userID string) error {
	body := map[string]any{"userId": userID}
	return c.Do(ctx, "admin/suspend-user", body, nil)
}
