//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_directory.go -package=mocks
package repositories

import (
	"encoding/json"
	"time"

	"presencehub/domain"
	"presencehub/errors"

	"github.com/dgraph-io/badger/v4"
)

// IUserDirectory resolves user ids to delivery-relevant profile data:
// display name, offline-push address, follow/block relationships.
// Account creation itself lives outside this core.
type IUserDirectory interface {
	Get(userID string) (domain.Profile, error)
	Save(profile domain.Profile) error
	Touch(userID string, at time.Time) error
	PushAddresses() ([]string, error)
}

type UserDirectory struct {
	db *badger.DB
}

func NewUserDirectory(db *badger.DB) UserDirectory {
	return UserDirectory{db: db}
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}

func (d UserDirectory) Get(userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err == badger.ErrKeyNotFound {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &profile)
		})
	})
	return profile, err
}

func (d UserDirectory) Save(profile domain.Profile) error {
	bytes, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(profile.ID), bytes)
	})
}

// Touch refreshes the user's last-activity timestamp. Used by the lifecycle
// handler on join and heartbeat, always best effort from the caller's side.
func (d UserDirectory) Touch(userID string, at time.Time) error {
	return d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err == badger.ErrKeyNotFound {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		var profile domain.Profile
		if err = item.Value(func(value []byte) error {
			return json.Unmarshal(value, &profile)
		}); err != nil {
			return err
		}
		profile.LastActiveAt = at
		bytes, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		return txn.Set(userKey(userID), bytes)
	})
}

// PushAddresses lists the registered offline-push address of every user
// that has one. Feeds the single batched push of a broadcast notification.
func (d UserDirectory) PushAddresses() ([]string, error) {
	var addresses []string
	err := d.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var profile domain.Profile
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &profile)
			}); err != nil {
				return err
			}
			if profile.PushAddress != "" {
				addresses = append(addresses, profile.PushAddress)
			}
		}
		return nil
	})
	return addresses, err
}
