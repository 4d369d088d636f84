// Package client provides the realtime push connection and the REST pull
// client for the consultation backend. Types mirror the backend wire
// protocol without importing server packages.
package client

import (
	"encoding/json"
	"time"
)

// EventName identifies a wire event, inbound or outbound.
type EventName string

// Inbound events.
const (
	EventConnected               EventName = "connected"
	EventConnectError            EventName = "connect_error"
	EventUserStatusChanged       EventName = "userStatusChanged"
	EventOnlineUsersList         EventName = "onlineUsersList"
	EventUnreadConversationCount EventName = "unreadConversationCount"
	EventNewNotification         EventName = "newNotification"
	EventAck                     EventName = "ack"
)

// Outbound events.
const (
	EventUserOnline           EventName = "userOnline"
	EventJoinNotificationRoom EventName = "joinNotificationRoom"
	EventJoinConversation     EventName = "joinConversation"
	EventSendMessage          EventName = "sendMessage"
	EventUpdateMessage        EventName = "updateMessage"
	EventDeleteMessage        EventName = "deleteMessage"
)

// Local lifecycle events, never sent on the wire. They are delivered through
// the same listener registry as server events.
const (
	EventConnect         EventName = "connect"
	EventDisconnect      EventName = "disconnect"
	EventReconnect       EventName = "reconnect"
	EventReconnectError  EventName = "reconnect_error"
	EventReconnectFailed EventName = "reconnect_failed"
)

// Envelope is the frame exchanged on the push channel. ID is set on outbound
// frames that expect an ack.
type Envelope struct {
	Event   EventName       `json:"event"`
	ID      uint64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// hello is the first frame of the handshake.
type hello struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

// ErrorPayload carries the message of a connect_error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Platform roles.
const (
	RoleStudent    = "student"
	RoleConsultant = "consultant"
	RoleAdvisor    = "advisor"
)

// User identifies an account on the platform.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// StatusChange reports a single user going online or offline.
type StatusChange struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // "online" or "offline"
}

// NotificationEvent is a pushed notification. It is forwarded to the session
// layer and never stored here.
type NotificationEvent struct {
	SenderID         string    `json:"senderId,omitempty"`
	Content          string    `json:"content"`
	Time             time.Time `json:"time"`
	NotificationType string    `json:"notificationType"`
	Status           string    `json:"status"`
}

// Notification is an entry of the persisted notification list served by the
// pull API.
type Notification struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"senderId,omitempty"`
	SenderName       string    `json:"senderName,omitempty"`
	Content          string    `json:"content"`
	Time             time.Time `json:"time"`
	NotificationType string    `json:"notificationType"`
	Status           string    `json:"status"`
}

// SendMessagePayload is the body of a sendMessage emission.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	ImageURL       string `json:"imageUrl,omitempty"`
	FileURL        string `json:"fileUrl,omitempty"`
}

// UpdateMessagePayload is the body of an updateMessage emission.
type UpdateMessagePayload struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

// DeleteMessagePayload is the body of a deleteMessage emission.
type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}
