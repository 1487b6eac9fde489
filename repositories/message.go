//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"presencehub/domain"
	"presencehub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	Conversation(userID, partnerID string, since *time.Time) ([]domain.Message, error)
	ConversationList(userID string) ([]ConversationSummary, error)
	MarkRead(id uuid.UUID, at time.Time) (domain.Message, bool, error)
	DeleteConversation(userID, partnerID string) error
}

// ConversationSummary is one row of a user's conversation overview.
type ConversationSummary struct {
	PartnerID     string
	LastMessageID uuid.UUID
	LastSenderID  string
	LastAt        time.Time
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored representation. Content is the sealed blob for
// text messages and is written exactly as received from the engine.
type diskMessage struct {
	ID         uuid.UUID                `json:"id"`
	SenderID   string                   `json:"sender_id"`
	ReceiverID string                   `json:"receiver_id"`
	Type       domain.MessageType       `json:"type"`
	Content    []byte                   `json:"content,omitempty"`
	Media      []domain.MediaDescriptor `json:"media,omitempty"`
	PostID     string                   `json:"post_id,omitempty"`
	At         time.Time                `json:"at"`
	Read       bool                     `json:"read"`
	ReadAt     *time.Time               `json:"read_at,omitempty"`
}

// conversationKey is direction-independent: both participants map onto the
// same prefix regardless of who sent first.
func conversationKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// Store persists a message in BadgerDB.
// The primary key is "msg:{conv}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
//
// Two secondary entries are written in the same transaction: an id index for
// point lookups and one conversation-summary row per participant.
func (m MessageRepository) Store(message domain.Message) error {
	key := primaryKey(message)
	bytes, err := json.Marshal(fromDomainMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		if err := txn.Set([]byte("msgid:"+message.ID.String()), []byte(key)); err != nil {
			return err
		}
		summary, err := json.Marshal(ConversationSummary{
			PartnerID:     message.ReceiverID,
			LastMessageID: message.ID,
			LastSenderID:  message.SenderID,
			LastAt:        message.CreatedAt,
		})
		if err != nil {
			return err
		}
		if err := txn.Set(convRowKey(message.SenderID, message.ReceiverID), summary); err != nil {
			return err
		}
		summary, err = json.Marshal(ConversationSummary{
			PartnerID:     message.SenderID,
			LastMessageID: message.ID,
			LastSenderID:  message.SenderID,
			LastAt:        message.CreatedAt,
		})
		if err != nil {
			return err
		}
		return txn.Set(convRowKey(message.ReceiverID, message.SenderID), summary)
	})
}

func primaryKey(message domain.Message) string {
	return fmt.Sprintf("msg:%s:%019d:%s",
		conversationKey(message.SenderID, message.ReceiverID),
		message.CreatedAt.UnixNano(),
		message.ID,
	)
}

func convRowKey(owner, partner string) []byte {
	return []byte(fmt.Sprintf("conv:%s:%s", owner, partner))
}

// Get resolves a message by id through the "msgid:" index.
func (m MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		disk, _, err := getByIDLocked(txn, id)
		if err != nil {
			return err
		}
		message = toDomainMessage(disk)
		return nil
	})
	return message, err
}

func getByIDLocked(txn *badger.Txn, id uuid.UUID) (diskMessage, string, error) {
	var disk diskMessage
	item, err := txn.Get([]byte("msgid:" + id.String()))
	if err == badger.ErrKeyNotFound {
		return disk, "", errors.ErrNotFound
	}
	if err != nil {
		return disk, "", err
	}
	var key string
	if err = item.Value(func(value []byte) error {
		key = string(value)
		return nil
	}); err != nil {
		return disk, "", err
	}
	item, err = txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return disk, "", errors.ErrNotFound
	}
	if err != nil {
		return disk, "", err
	}
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &disk)
	})
	return disk, key, err
}

// Conversation retrieves the messages between two users in chronological
// order. Thanks to the padded timestamp in the key, no sort is needed.
// A non-nil since narrows the scan to strictly newer messages.
func (m MessageRepository) Conversation(userID, partnerID string, since *time.Time) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversationKey(userID, partnerID)))
	var diskMessages []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if since != nil {
			seekKey = append(append([]byte{}, prefix...),
				[]byte(fmt.Sprintf("%019d", since.UnixNano()+1))...)
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var disk diskMessage
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &disk)
			}); err != nil {
				return err
			}
			diskMessages = append(diskMessages, disk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(diskMessages, func(d diskMessage, _ int) domain.Message {
		return toDomainMessage(d)
	}), nil
}

// ConversationList returns one summary row per partner the user has
// exchanged messages with, most recent first.
func (m MessageRepository) ConversationList(userID string) ([]ConversationSummary, error) {
	prefix := []byte(fmt.Sprintf("conv:%s:", userID))
	var summaries []ConversationSummary
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var summary ConversationSummary
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &summary)
			}); err != nil {
				return err
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastAt.After(summaries[j].LastAt)
	})
	return summaries, nil
}

// MarkRead flips the read flag, unread to read only. Marking an already-read
// message is a no-op success and leaves ReadAt untouched. The boolean tells
// the caller whether a transition actually happened.
func (m MessageRepository) MarkRead(id uuid.UUID, at time.Time) (domain.Message, bool, error) {
	var message domain.Message
	var changed bool
	err := m.db.Update(func(txn *badger.Txn) error {
		disk, key, err := getByIDLocked(txn, id)
		if err != nil {
			return err
		}
		if disk.Read {
			message = toDomainMessage(disk)
			return nil
		}
		disk.Read = true
		disk.ReadAt = &at
		bytes, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		if err = txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		changed = true
		message = toDomainMessage(disk)
		return nil
	})
	return message, changed, err
}

// DeleteConversation drops every message between two users along with the
// id-index and summary rows. This is the bulk-clear collaborator operation.
func (m MessageRepository) DeleteConversation(userID, partnerID string) error {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversationKey(userID, partnerID)))
	return m.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
			var disk diskMessage
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &disk)
			}); err != nil {
				return err
			}
			keys = append(keys, []byte("msgid:"+disk.ID.String()))
		}
		keys = append(keys, convRowKey(userID, partnerID), convRowKey(partnerID, userID))
		for _, key := range keys {
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

func fromDomainMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Type:       message.Type,
		Content:    message.Content,
		Media:      message.Media,
		PostID:     message.PostID,
		At:         message.CreatedAt,
		Read:       message.Read,
		ReadAt:     message.ReadAt,
	}
}

func toDomainMessage(disk diskMessage) domain.Message {
	return domain.Message{
		ID:         disk.ID,
		SenderID:   disk.SenderID,
		ReceiverID: disk.ReceiverID,
		Type:       disk.Type,
		Content:    disk.Content,
		Media:      disk.Media,
		PostID:     disk.PostID,
		CreatedAt:  disk.At,
		Read:       disk.Read,
		ReadAt:     disk.ReadAt,
	}
}
