package domain

import (
	"sort"
	"strings"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageImage || t == MessageFile
}

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	ReceiverID     string      `json:"receiverId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	Timestamp      time.Time   `json:"timestamp"`
	Read           bool        `json:"read"`
}

type Conversation struct {
	ID              string         `json:"id"`
	Participants    []string       `json:"participants"`
	LastMessage     *Message       `json:"lastMessage,omitempty"`
	LastMessageTime time.Time      `json:"lastMessageTime"`
	UnreadCount     map[string]int `json:"unreadCount"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// ConversationID is order independent: both participants map to the same id.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
