package transcript

import "time"

// Notification channels the provisioning step knows how to populate.
const (
	ChannelNewMessage      = "new_message"
	ChannelMessageUpdated  = "message_updated"
	ChannelNewConversation = "new_conversation"
)

// KnownChannels lists every channel a watcher may subscribe to.
var KnownChannels = []string{ChannelNewMessage, ChannelMessageUpdated, ChannelNewConversation}

// IsKnownChannel reports whether name is one of KnownChannels.
func IsKnownChannel(name string) bool {
	for _, c := range KnownChannels {
		if c == name {
			return true
		}
	}
	return false
}

// IsMessageChannel reports whether events on the channel carry a message row.
func IsMessageChannel(name string) bool {
	return name == ChannelNewMessage || name == ChannelMessageUpdated
}

// ChangeEvent is one notification delivered by the database.
type ChangeEvent struct {
	Channel    string
	Payload    string
	PID        uint32 // backend pid of the notifying session
	ReceivedAt time.Time
}

// Defaults substituted for absent message fields.
const (
	UnknownQuestion = "unknown question"
	UnknownAnswer   = "unknown answer"
	UnknownUser     = "unknown user"
)

// MessageRecord is the decoded shape of a message row.
type MessageRecord struct {
	ID             string // empty when the payload had no id
	ConversationID string
	CreatedAt      Timestamp
	Query          string
	Answer         string
	FromAccountID  string
	Truncated      bool // the notify function shortened query/answer to fit the payload limit
}

// ConversationRecord is the decoded shape of a conversation row.
type ConversationRecord struct {
	ID   string
	Name string
}
