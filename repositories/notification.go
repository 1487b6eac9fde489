//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"presencehub/domain"
	"presencehub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type INotificationRepository interface {
	Store(notification domain.Notification) error
	Get(id uuid.UUID) (domain.Notification, error)
	ForUser(userID string) ([]domain.Notification, error)
	MarkRead(id uuid.UUID, at time.Time) (domain.Notification, bool, error)
	DeleteForUser(userID string) error
}

type NotificationRepository struct {
	db *badger.DB
}

func NewNotificationRepository(db *badger.DB) NotificationRepository {
	return NotificationRepository{db: db}
}

// Keys are "ntf:{target}:{timestamp_padded}:{uuid}" with target either a
// user id or the broadcast sentinel, so one prefix scan per audience gives
// chronologically sorted records. An "ntfid:" index serves point lookups.
func notificationKey(n domain.Notification) string {
	return fmt.Sprintf("ntf:%s:%019d:%s", n.TargetID, n.CreatedAt.UnixNano(), n.ID)
}

func (r NotificationRepository) Store(notification domain.Notification) error {
	key := notificationKey(notification)
	bytes, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		return txn.Set([]byte("ntfid:"+notification.ID.String()), []byte(key))
	})
}

func (r NotificationRepository) Get(id uuid.UUID) (domain.Notification, error) {
	var notification domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		found, _, err := getNotificationLocked(txn, id)
		notification = found
		return err
	})
	return notification, err
}

func getNotificationLocked(txn *badger.Txn, id uuid.UUID) (domain.Notification, string, error) {
	var notification domain.Notification
	item, err := txn.Get([]byte("ntfid:" + id.String()))
	if err == badger.ErrKeyNotFound {
		return notification, "", errors.ErrNotFound
	}
	if err != nil {
		return notification, "", err
	}
	var key string
	if err = item.Value(func(value []byte) error {
		key = string(value)
		return nil
	}); err != nil {
		return notification, "", err
	}
	item, err = txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return notification, "", errors.ErrNotFound
	}
	if err != nil {
		return notification, "", err
	}
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &notification)
	})
	return notification, key, err
}

// ForUser merges the user-scoped records with the broadcast records,
// most recent first. Broadcasts are stored once, never fanned out per user.
func (r NotificationRepository) ForUser(userID string) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		for _, target := range []string{userID, domain.BroadcastTarget} {
			prefix := []byte(fmt.Sprintf("ntf:%s:", target))
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var notification domain.Notification
				if err := it.Item().Value(func(value []byte) error {
					return json.Unmarshal(value, &notification)
				}); err != nil {
					it.Close()
					return err
				}
				notifications = append(notifications, notification)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}

// MarkRead is monotonic like the message read flag: unread to read only,
// repeat calls succeed without altering ReadAt.
func (r NotificationRepository) MarkRead(id uuid.UUID, at time.Time) (domain.Notification, bool, error) {
	var notification domain.Notification
	var changed bool
	err := r.db.Update(func(txn *badger.Txn) error {
		found, key, err := getNotificationLocked(txn, id)
		if err != nil {
			return err
		}
		if found.Read {
			notification = found
			return nil
		}
		found.Read = true
		found.ReadAt = &at
		bytes, err := json.Marshal(found)
		if err != nil {
			return err
		}
		if err = txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		changed = true
		notification = found
		return nil
	})
	return notification, changed, err
}

// DeleteForUser bulk-clears a user's own notification records.
// Broadcast records are shared and therefore left alone.
func (r NotificationRepository) DeleteForUser(userID string) error {
	prefix := []byte(fmt.Sprintf("ntf:%s:", userID))
	return r.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
			var notification domain.Notification
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &notification)
			}); err != nil {
				return err
			}
			keys = append(keys, []byte("ntfid:"+notification.ID.String()))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}
