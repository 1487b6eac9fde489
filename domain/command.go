package domain

import "time"

// SendMessageCommand is the validated intent of one sendMessage call.
// Type-specific payload rules (text needs content, image needs media,
// post needs a reference) are enforced by the delivery engine on top of
// the struct tags.
type SendMessageCommand struct {
	SenderID   string      `validate:"required"`
	ReceiverID string      `validate:"required"`
	Type       MessageType `validate:"required,oneof=text image post"`
	Content    string
	Media      []MediaDescriptor
	PostID     string
}

type NotifyCommand struct {
	TargetID string `validate:"required"`
	Title    string `validate:"required"`
	Body     string `validate:"required"`
	Category NotificationCategory
}

type ScheduleNotifyCommand struct {
	NotifyCommand
	SendAt time.Time `validate:"required"`
}
