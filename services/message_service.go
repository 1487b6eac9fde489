//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"presencehub/contract"
	"presencehub/crypto"
	"presencehub/domain"
	"presencehub/domain/event"
	"presencehub/errors"
	"presencehub/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type IMessageService interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.DeliveryOutcome, error)
	GetMessages(userID, partnerID string, since *time.Time) ([]MessageView, error)
	GetConversationList(userID string) ([]repositories.ConversationSummary, error)
	MarkMessageRead(ctx context.Context, id uuid.UUID) (domain.Message, error)
	ClearConversation(userID, partnerID string) error
}

// MessageView is the caller-facing shape of a message: text content is
// already decrypted, everything else passes through.
type MessageView struct {
	ID         uuid.UUID
	SenderID   string
	ReceiverID string
	Type       domain.MessageType
	Content    string
	Media      []domain.MediaDescriptor
	PostID     string
	CreatedAt  time.Time
	Read       bool
	ReadAt     *time.Time
}

// MessageService is the delivery engine: it persists first (the durable
// record always exists before any live-delivery attempt), then tries the
// receiver's live connection, then hands the offline push to the outbox.
type MessageService struct {
	log      *slog.Logger
	validate *validator.Validate
	messages repositories.IMessageRepository
	registry contract.IRegistry
	sink     contract.EventSink
	box      *crypto.Box
	dir      repositories.IUserDirectory
	outbox   contract.PushQueue
}

func NewMessageService(log *slog.Logger, messages repositories.IMessageRepository,
	registry contract.IRegistry, sink contract.EventSink, box *crypto.Box,
	dir repositories.IUserDirectory, outbox contract.PushQueue) *MessageService {
	return &MessageService{
		log:      log,
		validate: validator.New(),
		messages: messages,
		registry: registry,
		sink:     sink,
		box:      box,
		dir:      dir,
		outbox:   outbox,
	}
}

// SendMessage implements the stored/delivered/error contract.
// Persistence is the gate: nothing is delivered live unless the durable
// write succeeded, and a persisted message is never reported as failed.
func (s *MessageService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.DeliveryOutcome, error) {
	if err := s.validateCommand(cmd); err != nil {
		return domain.OutcomeError, err
	}

	message, err := s.buildMessage(cmd)
	if err != nil {
		return domain.OutcomeError, err
	}

	if err := s.messages.Store(message); err != nil {
		return domain.OutcomeError, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	outcome := s.attemptLive(ctx, message, cmd.Content)

	// Offline push runs independently of the live outcome; its failure is
	// invisible to the sender.
	s.enqueuePush(cmd)

	return outcome, nil
}

func (s *MessageService) validateCommand(cmd domain.SendMessageCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	switch cmd.Type {
	case domain.MessageText:
		if cmd.Content == "" {
			return fmt.Errorf("%w: text message requires content", errors.ErrValidation)
		}
	case domain.MessageImage:
		if len(cmd.Media) == 0 {
			return fmt.Errorf("%w: image message requires at least one media descriptor", errors.ErrValidation)
		}
	case domain.MessagePost:
		if cmd.PostID == "" {
			return fmt.Errorf("%w: post message requires a post reference", errors.ErrValidation)
		}
	}
	return nil
}

func (s *MessageService) buildMessage(cmd domain.SendMessageCommand) (domain.Message, error) {
	message := domain.Message{
		ID:         uuid.New(),
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Type:       cmd.Type,
		CreatedAt:  time.Now().UTC(),
	}
	switch cmd.Type {
	case domain.MessageText:
		// Content is never persisted in plaintext.
		sealed, err := s.box.Seal(cmd.Content)
		if err != nil {
			return message, fmt.Errorf("seal content: %w", err)
		}
		message.Content = sealed
	case domain.MessageImage:
		message.Media = cmd.Media
	case domain.MessagePost:
		message.PostID = cmd.PostID
	}
	return message, nil
}

// attemptLive pushes receiveMessage to the receiver's connection when it is
// present and still open. A stale handle is evicted through the registry's
// compare-and-remove path and the outcome degrades to stored.
func (s *MessageService) attemptLive(ctx context.Context, message domain.Message, plaintext string) domain.DeliveryOutcome {
	conn, ok := s.registry.Lookup(message.ReceiverID)
	if !ok {
		return domain.OutcomeStored
	}
	if !conn.IsOpen() {
		s.registry.Remove(ctx, message.ReceiverID, conn)
		s.log.Debug("Evicted stale handle during delivery", "user_id", message.ReceiverID)
		return domain.OutcomeStored
	}

	evt := event.MessageReceived{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Type:       message.Type,
		Content:    plaintext,
		Media:      message.Media,
		PostID:     message.PostID,
		CreatedAt:  message.CreatedAt,
	}
	if err := conn.Deliver(ctx, evt); err != nil {
		s.registry.Remove(ctx, message.ReceiverID, conn)
		s.log.Debug("Live delivery failed, handle evicted", "user_id", message.ReceiverID, "error", err)
		return domain.OutcomeStored
	}
	return domain.OutcomeDelivered
}

// enqueuePush schedules a best-effort offline push with a type-specific
// human-readable summary.
func (s *MessageService) enqueuePush(cmd domain.SendMessageCommand) {
	receiver, err := s.dir.Get(cmd.ReceiverID)
	if err != nil || receiver.PushAddress == "" {
		return
	}

	senderName := cmd.SenderID
	if sender, err := s.dir.Get(cmd.SenderID); err == nil && sender.DisplayName != "" {
		senderName = sender.DisplayName
	}

	var body string
	switch cmd.Type {
	case domain.MessageText:
		body = cmd.Content
	case domain.MessageImage:
		body = fmt.Sprintf("%s sent you a photo", senderName)
	case domain.MessagePost:
		body = fmt.Sprintf("%s shared a post with you", senderName)
	}

	s.outbox.Enqueue(contract.PushJob{
		Addresses: []string{receiver.PushAddress},
		Title:     senderName,
		Body:      body,
		Data:      map[string]string{"sender_id": cmd.SenderID, "type": string(cmd.Type)},
	})
}

// GetMessages returns a conversation in timestamp order, text decrypted.
func (s *MessageService) GetMessages(userID, partnerID string, since *time.Time) ([]MessageView, error) {
	messages, err := s.messages.Conversation(userID, partnerID, since)
	if err != nil {
		return nil, err
	}
	views := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		view, err := s.toView(message)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *MessageService) toView(message domain.Message) (MessageView, error) {
	view := MessageView{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Type:       message.Type,
		Media:      message.Media,
		PostID:     message.PostID,
		CreatedAt:  message.CreatedAt,
		Read:       message.Read,
		ReadAt:     message.ReadAt,
	}
	if message.Type == domain.MessageText {
		content, err := s.box.Open(message.Content)
		if err != nil {
			return view, err
		}
		view.Content = content
	}
	return view, nil
}

func (s *MessageService) GetConversationList(userID string) ([]repositories.ConversationSummary, error) {
	return s.messages.ConversationList(userID)
}

// MarkMessageRead flips the read flag (unread to read only; repeating is a
// no-op success) and surfaces a read receipt to the sender if live.
func (s *MessageService) MarkMessageRead(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	message, changed, err := s.messages.MarkRead(id, time.Now().UTC())
	if err != nil {
		return domain.Message{}, err
	}
	if changed && message.ReadAt != nil {
		receipt := event.ReadReceipt{MessageID: message.ID, ReaderID: message.ReceiverID, ReadAt: *message.ReadAt}
		if err := s.sink.ToUser(ctx, message.SenderID, receipt); err != nil {
			s.log.Debug("Read receipt delivery failed", "sender_id", message.SenderID, "error", err)
		}
	}
	return message, nil
}

func (s *MessageService) ClearConversation(userID, partnerID string) error {
	return s.messages.DeleteConversation(userID, partnerID)
}
