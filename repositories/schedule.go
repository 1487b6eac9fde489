//go:generate go run go.uber.org/mock/mockgen -source=schedule.go -destination=../mocks/mock_schedule_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"presencehub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IScheduleRepository interface {
	Store(task domain.ScheduledNotification) error
	Due(now time.Time) ([]domain.ScheduledNotification, error)
	Claim(id uuid.UUID) (bool, error)
}

// ScheduleRepository holds durable scheduled-notification task entries.
// Entries survive process restarts; the scheduler worker sweeps past-due
// entries on start so a restart never silently drops a send.
type ScheduleRepository struct {
	db *badger.DB
}

func NewScheduleRepository(db *badger.DB) ScheduleRepository {
	return ScheduleRepository{db: db}
}

// Keys sort by send time: "sched:{sendAt_padded}:{uuid}".
func scheduleKey(task domain.ScheduledNotification) string {
	return fmt.Sprintf("sched:%019d:%s", task.SendAt.UnixNano(), task.ID)
}

func (r ScheduleRepository) Store(task domain.ScheduledNotification) error {
	bytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(scheduleKey(task)), bytes); err != nil {
			return err
		}
		return txn.Set([]byte("schedid:"+task.ID.String()), []byte(scheduleKey(task)))
	})
}

// Due returns every entry whose send time has elapsed, oldest first.
// The padded-timestamp key makes this a bounded prefix walk that stops at
// the first future entry.
func (r ScheduleRepository) Due(now time.Time) ([]domain.ScheduledNotification, error) {
	var due []domain.ScheduledNotification
	horizon := fmt.Sprintf("sched:%019d", now.UnixNano())
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("sched:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if string(it.Item().Key()) > horizon {
				break
			}
			var task domain.ScheduledNotification
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &task)
			}); err != nil {
				return err
			}
			due = append(due, task)
		}
		return nil
	})
	return due, err
}

// Claim removes a task entry and reports whether this caller won it.
// Deleting inside one transaction is what makes a due task execute exactly
// once even if two sweeps observe it concurrently.
func (r ScheduleRepository) Claim(id uuid.UUID) (bool, error) {
	claimed := false
	err := r.db.Update(func(txn *badger.Txn) error {
		indexKey := []byte("schedid:" + id.String())
		item, err := txn.Get(indexKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var key string
		if err = item.Value(func(value []byte) error {
			key = string(value)
			return nil
		}); err != nil {
			return err
		}
		if err = txn.Delete([]byte(key)); err != nil {
			return err
		}
		if err = txn.Delete(indexKey); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}
