package domain

// Activity types handled by the bot.
const (
	ActivityMessage            = "message"
	ActivityConversationUpdate = "conversationUpdate"
)

// ChannelAccount identifies a participant of a conversation.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Activity is the subset of the Bot Framework activity schema consumed and
// produced by the bot.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	Timestamp    string              `json:"timestamp,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	Text         string              `json:"text"`
	MembersAdded []ChannelAccount    `json:"membersAdded,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	DeliveryMode string              `json:"deliveryMode,omitempty"`
}

// Turn is one inbound event as seen by the router.
type Turn struct {
	ConversationID string
	From           ChannelAccount
	Recipient      ChannelAccount
	Text           string
	MembersAdded   []ChannelAccount
}

// TurnFromActivity extracts the routing view of an inbound activity.
func TurnFromActivity(a Activity) Turn {
	return Turn{
		ConversationID: a.Conversation.ID,
		From:           a.From,
		Recipient:      a.Recipient,
		Text:           a.Text,
		MembersAdded:   a.MembersAdded,
	}
}
