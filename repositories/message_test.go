package repositories

import (
	"log/slog"
	"testing"
	"time"

	"presencehub/domain"
	"presencehub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	return openTestDBAt(t, t.TempDir())
}

func openTestDBAt(t *testing.T, dir string) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func textMessage(sender, receiver, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Type:       domain.MessageText,
		Content:    []byte(content),
		CreatedAt:  at,
	}
}

func Test_Store_And_Fetch_Conversation_In_Time_Order(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	messages := []domain.Message{
		textMessage("alice", "bob", "first", at),
		textMessage("bob", "alice", "second", at.Add(1*time.Minute)),
		textMessage("alice", "bob", "third", at.Add(2*time.Minute)),
	}
	// Stored out of order on purpose; the key layout restores chronology.
	for _, i := range []int{2, 0, 1} {
		req.NoError(repository.Store(messages[i]))
	}

	fetched, err := repository.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal([]byte("first"), fetched[0].Content)
	req.Equal([]byte("second"), fetched[1].Content)
	req.Equal([]byte("third"), fetched[2].Content)

	// Both participants resolve the same conversation.
	mirrored, err := repository.Conversation("bob", "alice", nil)
	req.NoError(err)
	req.Len(mirrored, 3)
}

func Test_Conversation_Since_Narrows_The_Scan(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	req.NoError(repository.Store(textMessage("alice", "bob", "old", at)))
	req.NoError(repository.Store(textMessage("alice", "bob", "new", at.Add(time.Hour))))

	fetched, err := repository.Conversation("alice", "bob", &at)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal([]byte("new"), fetched[0].Content)
}

func Test_Get_By_ID(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	message := textMessage("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Store(message))

	fetched, err := repository.Get(message.ID)
	req.NoError(err)
	req.Equal(message.ID, fetched.ID)
	req.Equal([]byte("hello"), fetched.Content)

	_, err = repository.Get(uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_MarkRead_Is_Monotonic(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	message := textMessage("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Store(message))

	// First transition flips the flag
	readAt := time.Now().UTC().Add(time.Second)
	updated, changed, err := repository.MarkRead(message.ID, readAt)
	req.NoError(err)
	req.True(changed)
	req.True(updated.Read)
	req.NotNil(updated.ReadAt)
	req.Equal(readAt, *updated.ReadAt)

	// Second call is a no-op success leaving ReadAt untouched
	again, changed, err := repository.MarkRead(message.ID, readAt.Add(time.Hour))
	req.NoError(err)
	req.False(changed)
	req.Equal(readAt, *again.ReadAt)
}

func Test_ConversationList_Latest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	req.NoError(repository.Store(textMessage("alice", "bob", "hi bob", at)))
	req.NoError(repository.Store(textMessage("clara", "alice", "hi alice", at.Add(time.Minute))))

	summaries, err := repository.ConversationList("alice")
	req.NoError(err)
	req.Len(summaries, 2)
	req.Equal("clara", summaries[0].PartnerID)
	req.Equal("bob", summaries[1].PartnerID)
	req.Equal("clara", summaries[0].LastSenderID)
}

func Test_DeleteConversation_Bulk_Clears(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()
	kept := textMessage("alice", "clara", "keep me", at)

	req.NoError(repository.Store(textMessage("alice", "bob", "one", at)))
	req.NoError(repository.Store(textMessage("bob", "alice", "two", at.Add(time.Minute))))
	req.NoError(repository.Store(kept))

	req.NoError(repository.DeleteConversation("alice", "bob"))

	gone, err := repository.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Empty(gone)

	// Other conversations survive the bulk clear
	remaining, err := repository.Conversation("alice", "clara", nil)
	req.NoError(err)
	req.Len(remaining, 1)

	summaries, err := repository.ConversationList("alice")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal("clara", summaries[0].PartnerID)
}
