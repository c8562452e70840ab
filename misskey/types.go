package misskey

// Subset of the Misskey "UserLite" schema, as embedded in notes.
type User struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Username string  `json:"username"`
	// null for users local to the instance
	Host      *string `json:"host"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	IsBot     bool    `json:"isBot,omitempty"`
}

// Subset of the "UserDetailed" schema returned by "users/show".
//
// The relationship fields are relative to the authenticated account: IsFollowing means the bot follows this user, IsFollowed means this user follows the bot.
type UserDetailed struct {
	User
	Description    *string `json:"description"`
	FollowersCount int64   `json:"followersCount"`
	FollowingCount int64   `json:"followingCount"`
	NotesCount     int64   `json:"notesCount"`
	IsFollowing    bool    `json:"isFollowing"`
	IsFollowed     bool    `json:"isFollowed"`
	IsBlocking     bool    `json:"isBlocking"`
	IsMuted        bool    `json:"isMuted"`
	IsSuspended    bool    `json:"isSuspended"`
	CreatedAt      string  `json:"createdAt"`
}

// Response of the "i" endpoint (the authenticated account itself).
type MeDetailed struct {
	User
	IsAdmin     bool `json:"isAdmin,omitempty"`
	IsModerator bool `json:"isModerator,omitempty"`
}

type DriveFile struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	URL          string  `json:"url"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	IsSensitive  bool    `json:"isSensitive"`
}

type Note struct {
	ID         string      `json:"id"`
	CreatedAt  string      `json:"createdAt"`
	UserID     string      `json:"userId"`
	User       User        `json:"user"`
	Text       *string     `json:"text"`
	CW         *string     `json:"cw"`
	Visibility string      `json:"visibility"`
	Files      []DriveFile `json:"files"`
	Mentions   []string    `json:"mentions,omitempty"`
	ReplyID    *string     `json:"replyId"`
	RenoteID   *string     `json:"renoteId"`
}
