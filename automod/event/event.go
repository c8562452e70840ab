package event

import (
	"strings"
)

// An inbound note addressed to the bot account.
//
// Immutable once received. Produced by the network client (stream event or backlog scan), consumed read-only by the pipeline, and discarded after processing.
type Mention struct {
	NoteID   string
	AuthorID string
	// Display name; may be empty
	AuthorName     string
	AuthorUsername string
	// Empty for users local to the bot's instance
	AuthorHost  string
	Text        string
	Attachments []Attachment
}

type Attachment struct {
	URL string
	// MIME type, eg "image/png"
	Type string
	Name string
}

// Full "@user@host" style handle of the mention author. Local users have no host part.
func (m *Mention) AuthorHandle() string {
	if m.AuthorHost == "" {
		return "@" + m.AuthorUsername
	}
	return "@" + m.AuthorUsername + "@" + m.AuthorHost
}

func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.Type, "image/")
}

// Resolved detail for a mention's author, relative to the bot account.
//
// Always fetched fresh per mention and never cached: relationship and suspension state can change between mentions.
type AuthorProfile struct {
	FollowersCount int64
	FollowingCount int64
	// the author follows the bot
	IsFollowingBot bool
	// the bot follows the author
	IsFollowedByBot bool
	IsSuspended     bool
	Description     *string
}

// Any follow relationship in either direction with the bot exempts the author from moderation ("friendly fire").
func (p *AuthorProfile) HasRelationship() bool {
	return p.IsFollowingBot || p.IsFollowedByBot
}

// One extractor's transcription of one attachment.
type OcrResult struct {
	Extractor string
	// Index into Mention.Attachments
	Attachment int
	Text       string
}

// The bot's own account, as returned by the login handshake.
type BotIdentity struct {
	ID       string
	Username string
	Name     string
	// Hostname of the instance the bot runs on
	Host string
}

func (b *BotIdentity) Handle() string {
	if b.Host == "" {
		return "@" + b.Username
	}
	return "@" + b.Username + "@" + b.Host
}

// Formatted, self-contained evidence text handed to every judge. Identical for all judges evaluating the same mention.
type EvidenceReport string
