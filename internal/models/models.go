package models

import "time"

// TgUser is a private-chat user of a bot together with the topic assigned to them
// in the admin group
type TgUser struct {
	UserID   int64
	FullName string
	Username string
	ThreadID int // 0 when the user has no topic
	Subject  string

	Banned       bool
	ShadowBanned bool

	CreatedAt          time.Time
	LastUserMessageAt  time.Time
	LastAdminMessageAt time.Time
}

// HasThread reports whether a topic is assigned to the user
func (u *TgUser) HasThread() bool {
	return u.ThreadID != 0
}

// LastActivity returns the most recent of the user's and admins' messages,
// falling back to the creation time
func (u *TgUser) LastActivity() time.Time {
	last := u.CreatedAt
	if u.LastUserMessageAt.After(last) {
		last = u.LastUserMessageAt
	}
	if u.LastAdminMessageAt.After(last) {
		last = u.LastAdminMessageAt
	}
	return last
}

// Action is a name of a counted bot action
type Action string

const (
	ActionStart            Action = "start"
	ActionNewUser          Action = "new_user"
	ActionUserMessage      Action = "user_message"
	ActionAdminMessage     Action = "admin_message"
	ActionTopicCreated     Action = "topic_created"
	ActionTopicRecreated   Action = "topic_recreated"
	ActionBroadcastMessage Action = "broadcast_message"
)

// Actions lists every counted action in report order
var Actions = []Action{
	ActionStart,
	ActionNewUser,
	ActionUserMessage,
	ActionAdminMessage,
	ActionTopicCreated,
	ActionTopicRecreated,
	ActionBroadcastMessage,
}

// Destruction is a message scheduled to be deleted
type Destruction struct {
	ChatID    int64
	MessageID int
	DeleteAt  time.Time
}

// MsgType is a kind of Telegram message content
type MsgType string

const (
	MsgPhoto     MsgType = "photo"
	MsgVideo     MsgType = "video"
	MsgAnimation MsgType = "animation"
	MsgSticker   MsgType = "sticker"
	MsgAudio     MsgType = "audio"
	MsgVoice     MsgType = "voice"
	MsgDocument  MsgType = "document"
	MsgVideoNote MsgType = "video_note"
	MsgContact   MsgType = "contact"
	MsgLocation  MsgType = "location"
	MsgVenue     MsgType = "venue"
	MsgPoll      MsgType = "poll"
	MsgDice      MsgType = "dice"
	MsgRegular   MsgType = "regular/other"
)
