package domain

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastTarget is the sentinel target id meaning "every user".
// A broadcast produces exactly one persisted record, not one per user.
const BroadcastTarget = "*"

type NotificationCategory string

const (
	CategoryFollow  NotificationCategory = "follow"
	CategoryLike    NotificationCategory = "like"
	CategoryComment NotificationCategory = "comment"
	CategorySystem  NotificationCategory = "system"
	CategoryMessage NotificationCategory = "message"
)

type Notification struct {
	ID        uuid.UUID            `json:"id"`
	TargetID  string               `json:"target_id"` // user id or BroadcastTarget
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Category  NotificationCategory `json:"category"`
	Read      bool                 `json:"read"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

func (n Notification) IsBroadcast() bool {
	return n.TargetID == BroadcastTarget
}

// ScheduledNotification is the durable task entry backing a deferred send.
// It survives process restarts; a recovery sweep re-queues past-due entries.
type ScheduledNotification struct {
	ID        uuid.UUID            `json:"id"`
	TargetID  string               `json:"target_id"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Category  NotificationCategory `json:"category"`
	SendAt    time.Time            `json:"send_at"`
	CreatedAt time.Time            `json:"created_at"`
}
