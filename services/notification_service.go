//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"presencehub/contract"
	"presencehub/domain"
	"presencehub/domain/event"
	"presencehub/errors"
	"presencehub/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type INotificationService interface {
	Notify(ctx context.Context, cmd domain.NotifyCommand) (domain.DeliveryOutcome, error)
	ScheduleNotify(ctx context.Context, cmd domain.ScheduleNotifyCommand) (uuid.UUID, error)
	GetUserNotifications(userID string) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) (domain.Notification, error)
	NotifyFollow(ctx context.Context, targetID, actorName string) (domain.DeliveryOutcome, error)
	NotifyLike(ctx context.Context, targetID, actorName string) (domain.DeliveryOutcome, error)
	NotifyComment(ctx context.Context, targetID, actorName string) (domain.DeliveryOutcome, error)
	DeliverScheduled(ctx context.Context, task domain.ScheduledNotification) error
}

// NotificationService persists notification records and routes them the
// same way the delivery engine routes messages: durable write first, live
// connection if possible, offline push otherwise.
type NotificationService struct {
	log           *slog.Logger
	validate      *validator.Validate
	notifications repositories.INotificationRepository
	schedules     repositories.IScheduleRepository
	registry      contract.IRegistry
	sink          contract.EventSink
	dir           repositories.IUserDirectory
	outbox        contract.PushQueue
}

func NewNotificationService(log *slog.Logger,
	notifications repositories.INotificationRepository,
	schedules repositories.IScheduleRepository,
	registry contract.IRegistry, sink contract.EventSink,
	dir repositories.IUserDirectory, outbox contract.PushQueue) *NotificationService {
	return &NotificationService{
		log:           log,
		validate:      validator.New(),
		notifications: notifications,
		schedules:     schedules,
		registry:      registry,
		sink:          sink,
		dir:           dir,
		outbox:        outbox,
	}
}

// Notify persists one record and attempts delivery. A broadcast target
// yields exactly one persisted record, one live broadcast emission, and one
// batched offline push covering every registered push address.
func (s *NotificationService) Notify(ctx context.Context, cmd domain.NotifyCommand) (domain.DeliveryOutcome, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.OutcomeError, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	notification := domain.Notification{
		ID:        uuid.New(),
		TargetID:  cmd.TargetID,
		Title:     cmd.Title,
		Body:      cmd.Body,
		Category:  cmd.Category,
		CreatedAt: time.Now().UTC(),
	}
	if notification.Category == "" {
		notification.Category = domain.CategorySystem
	}

	if err := s.notifications.Store(notification); err != nil {
		return domain.OutcomeError, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	if notification.IsBroadcast() {
		return s.deliverBroadcast(ctx, notification), nil
	}
	return s.deliverToUser(ctx, notification), nil
}

func (s *NotificationService) deliverToUser(ctx context.Context, notification domain.Notification) domain.DeliveryOutcome {
	evt := event.NotificationReceived{
		ID:        notification.ID,
		Title:     notification.Title,
		Body:      notification.Body,
		Category:  notification.Category,
		CreatedAt: notification.CreatedAt,
	}

	conn, ok := s.registry.Lookup(notification.TargetID)
	if ok && conn.IsOpen() {
		if err := conn.Deliver(ctx, evt); err == nil {
			return domain.OutcomeDelivered
		}
		s.registry.Remove(ctx, notification.TargetID, conn)
		s.log.Debug("Live notification failed, handle evicted", "user_id", notification.TargetID)
	} else if ok {
		s.registry.Remove(ctx, notification.TargetID, conn)
	}

	// Not live: offline push if an address is registered.
	if profile, err := s.dir.Get(notification.TargetID); err == nil && profile.PushAddress != "" {
		s.outbox.Enqueue(contract.PushJob{
			Addresses: []string{profile.PushAddress},
			Title:     notification.Title,
			Body:      notification.Body,
			Data:      map[string]string{"category": string(notification.Category)},
		})
	}
	return domain.OutcomeStored
}

func (s *NotificationService) deliverBroadcast(ctx context.Context, notification domain.Notification) domain.DeliveryOutcome {
	s.sink.Broadcast(ctx, event.NotificationReceived{
		ID:        notification.ID,
		Title:     notification.Title,
		Body:      notification.Body,
		Category:  notification.Category,
		CreatedAt: notification.CreatedAt,
	})

	addresses, err := s.dir.PushAddresses()
	if err != nil {
		s.log.Warn("Push address listing failed for broadcast", "error", err)
		return domain.OutcomeDelivered
	}
	if len(addresses) > 0 {
		// One batched outbound call, never one per user.
		s.outbox.Enqueue(contract.PushJob{
			Addresses: addresses,
			Title:     notification.Title,
			Body:      notification.Body,
			Data:      map[string]string{"category": string(notification.Category)},
		})
	}
	return domain.OutcomeDelivered
}

// ScheduleNotify accepts a deferred send. The caller gets an immediate
// "accepted" (the task id); persistence of the notification record and the
// delivery attempt happen when the schedule elapses, exactly once. A send
// time that is not in the future collapses into an immediate Notify.
func (s *NotificationService) ScheduleNotify(ctx context.Context, cmd domain.ScheduleNotifyCommand) (uuid.UUID, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if !cmd.SendAt.After(time.Now().UTC()) {
		_, err := s.Notify(ctx, cmd.NotifyCommand)
		return uuid.Nil, err
	}

	task := domain.ScheduledNotification{
		ID:        uuid.New(),
		TargetID:  cmd.TargetID,
		Title:     cmd.Title,
		Body:      cmd.Body,
		Category:  cmd.Category,
		SendAt:    cmd.SendAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.schedules.Store(task); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return task.ID, nil
}

// DeliverScheduled executes one claimed scheduled task. The scheduler worker
// owns the claim; by the time we are called the entry is already consumed.
func (s *NotificationService) DeliverScheduled(ctx context.Context, task domain.ScheduledNotification) error {
	_, err := s.Notify(ctx, domain.NotifyCommand{
		TargetID: task.TargetID,
		Title:    task.Title,
		Body:     task.Body,
		Category: task.Category,
	})
	return err
}

func (s *NotificationService) GetUserNotifications(userID string) ([]domain.Notification, error) {
	return s.notifications.ForUser(userID)
}

// MarkNotificationRead is monotonic, mirroring the message read contract.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, id uuid.UUID) (domain.Notification, error) {
	notification, _, err := s.notifications.MarkRead(id, time.Now().UTC())
	return notification, err
}

func (s *NotificationService) NotifyFollow(ctx context.Context, targetID, actorName string) (domain.DeliveryOutcome, error) {
	return s.Notify(ctx, domain.NotifyCommand{
		TargetID: targetID,
		Title:    "New follower",
		Body:     fmt.Sprintf("%s started following you", actorName),
		Category: domain.CategoryFollow,
	})
}

func (s *NotificationService) NotifyLike(ctx context.Context, targetID, actorName string) (domain.DeliveryOutcome, error) {
	return s.Notify(ctx, domain.NotifyCommand{
		TargetID: targetID,
		Title:    "New like",
		Body:     fmt.Sprintf("%s liked your post", actorName),
		Category: domain.CategoryLike,
	})
}

func (s *NotificationService) NotifyComment(ctx context.Context, targetID, actorName string) (domain.DeliveryOutcome, error) {
	return s.Notify(ctx, domain.NotifyCommand{
		TargetID: targetID,
		Title:    "New comment",
		Body:     fmt.Sprintf("%s commented on your post", actorName),
		Category: domain.CategoryComment,
	})
}
