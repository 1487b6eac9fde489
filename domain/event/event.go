// Package event defines the real-time events pushed to connected clients.
// Events cross the wire as-is (JSON), so field names are part of the
// client contract.
package event

import (
	"time"

	"presencehub/domain"

	"github.com/google/uuid"
)

// Event is anything deliverable over a live connection.
// Name is the wire-level event discriminator.
type Event interface {
	Name() string
}

// OnlineUsers carries the full current online user id list.
// Sent to every connection whenever presence changes.
type OnlineUsers struct {
	Users []string `json:"users"`
}

func (OnlineUsers) Name() string { return "updateOnlineUsers" }

// MessageReceived is pushed to a live receiver. Content is the decrypted
// text for text messages; other types carry their raw payload.
type MessageReceived struct {
	ID         uuid.UUID                `json:"id"`
	SenderID   string                   `json:"sender_id"`
	ReceiverID string                   `json:"receiver_id"`
	Type       domain.MessageType       `json:"type"`
	Content    string                   `json:"content,omitempty"`
	Media      []domain.MediaDescriptor `json:"media,omitempty"`
	PostID     string                   `json:"post_id,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

func (MessageReceived) Name() string { return "receiveMessage" }

type NotificationReceived struct {
	ID        uuid.UUID                   `json:"id"`
	Title     string                      `json:"title"`
	Body      string                      `json:"body"`
	Category  domain.NotificationCategory `json:"category"`
	CreatedAt time.Time                   `json:"created_at"`
}

func (NotificationReceived) Name() string { return "receiveNotification" }

type JoinAcknowledged struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
}

func (JoinAcknowledged) Name() string { return "joinAcknowledged" }

type HeartbeatAck struct {
	At time.Time `json:"at"`
}

func (HeartbeatAck) Name() string { return "heartbeatAck" }

// ReadReceipt is pushed to a live sender when the receiver marks a
// message read.
type ReadReceipt struct {
	MessageID uuid.UUID `json:"message_id"`
	ReaderID  string    `json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}

func (ReadReceipt) Name() string { return "readReceipt" }
