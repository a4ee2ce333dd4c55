package model

import "time"

const NotificationNewMessage = "newMessage"

type Notification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	ConversationID string    `json:"conversationId,omitempty"`
	SenderID       string    `json:"senderId,omitempty"`
	Read           bool      `json:"read"`
	Timestamp      time.Time `json:"timestamp"`
}

func (n *Notification) Record() map[string]interface{} {
	return map[string]interface{}{
		"userId":    n.UserID,
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"read":      n.Read,
		"timestamp": n.Timestamp,
		"data": map[string]interface{}{
			FieldConversationID: n.ConversationID,
			"senderId":          n.SenderID,
		},
	}
}

func NotificationFromDocument(id string, data map[string]interface{}) *Notification {
	n := &Notification{
		ID:        id,
		UserID:    str(data, "userId"),
		Type:      str(data, "type"),
		Title:     str(data, "title"),
		Message:   str(data, "message"),
		Read:      boolean(data, "read"),
		Timestamp: instant(data, "timestamp"),
	}
	if extra, ok := data["data"].(map[string]interface{}); ok {
		n.ConversationID = str(extra, FieldConversationID)
		n.SenderID = str(extra, "senderId")
	}
	return n
}
