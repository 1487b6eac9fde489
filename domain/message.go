// Package domain contains core concepts of the messaging system.
// This file defines Message entities and related rules.
// Messages are immutable once created, except for the read flag.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessagePost  MessageType = "post"
)

// MediaDescriptor points at an uploaded media object.
// Storage mechanics live outside this core; we only carry the reference.
type MediaDescriptor struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Message represents one direct message between two users.
// For MessageText, Content holds the sealed (nonce||ciphertext) blob and is
// never persisted in plaintext. Image and post messages carry their payload
// as-is in Media / PostID; exactly one of the three is populated.
type Message struct {
	ID         uuid.UUID
	SenderID   string
	ReceiverID string
	Type       MessageType
	Content    []byte
	Media      []MediaDescriptor
	PostID     string
	CreatedAt  time.Time
	Read       bool
	ReadAt     *time.Time
}

// DeliveryOutcome is what the sender of a message or notification gets back.
// Stored and Delivered both mean the durable record exists; they differ only
// in whether a live connection received the event.
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeStored    DeliveryOutcome = "stored"
	OutcomeError     DeliveryOutcome = "error"
)
