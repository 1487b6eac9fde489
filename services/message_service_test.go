package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"presencehub/contract"
	"presencehub/crypto"
	"presencehub/domain"
	"presencehub/domain/event"
	"presencehub/errors"
	"presencehub/internal"
	"presencehub/repositories"
	"presencehub/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeConn mirrors the transport handle: it records deliveries and can be
// flipped closed to simulate a dead connection left in the registry.
type fakeConn struct {
	id string

	mu        sync.Mutex
	open      bool
	delivered []event.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString(), open: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Deliver(_ context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, e)
	return nil
}

func (c *fakeConn) Close(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *fakeConn) events(name string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []event.Event
	for _, e := range c.delivered {
		if e.Name() == name {
			matched = append(matched, e)
		}
	}
	return matched
}

// recordingOutbox captures push jobs instead of publishing them.
type recordingOutbox struct {
	mu   sync.Mutex
	jobs []contract.PushJob
}

func (o *recordingOutbox) Enqueue(job contract.PushJob) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, job)
	return true
}

func (o *recordingOutbox) all() []contract.PushJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]contract.PushJob{}, o.jobs...)
}

type engineFixture struct {
	service   *MessageService
	registry  *runtime.Registry
	messages  repositories.MessageRepository
	directory repositories.UserDirectory
	outbox    *recordingOutbox
	box       *crypto.Box
}

func newEngineFixture(t *testing.T) engineFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := internal.GetLoggerFromLevel(slog.LevelError)
	box, err := crypto.NewBox([]byte("engine-test-secret"))
	require.NoError(t, err)

	registry := runtime.NewRegistry(log)
	messages := repositories.NewMessageRepository(db, log)
	directory := repositories.NewUserDirectory(db)
	outbox := &recordingOutbox{}
	service := NewMessageService(log, messages, registry, registry, box, directory, outbox)
	return engineFixture{
		service:   service,
		registry:  registry,
		messages:  messages,
		directory: directory,
		outbox:    outbox,
		box:       box,
	}
}

func textCmd(sender, receiver, content string) domain.SendMessageCommand {
	return domain.SendMessageCommand{
		SenderID:   sender,
		ReceiverID: receiver,
		Type:       domain.MessageText,
		Content:    content,
	}
}

func TestSendMessage_Validation_Rejects_Before_Persistence(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()

	cases := []domain.SendMessageCommand{
		{SenderID: "alice", Type: domain.MessageText, Content: "hi"},            // missing receiver
		{SenderID: "alice", ReceiverID: "bob"},                                  // missing type
		{SenderID: "alice", ReceiverID: "bob", Type: domain.MessageText},        // text without content
		{SenderID: "alice", ReceiverID: "bob", Type: domain.MessageImage},       // image without media
		{SenderID: "alice", ReceiverID: "bob", Type: domain.MessagePost},        // post without reference
		{SenderID: "alice", ReceiverID: "bob", Type: domain.MessageType("gif")}, // unknown type
	}
	for _, cmd := range cases {
		outcome, err := f.service.SendMessage(ctx, cmd)
		req.Equal(domain.OutcomeError, outcome)
		req.ErrorIs(err, errors.ErrValidation)
	}

	// Nothing was persisted for any of the rejected commands
	conversation, err := f.messages.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Empty(conversation)
}

func TestSendMessage_Offline_Receiver_Is_Stored_And_Pushed(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()
	req.NoError(f.directory.Save(domain.Profile{ID: "alice", DisplayName: "Alice"}))
	req.NoError(f.directory.Save(domain.Profile{ID: "bob", PushAddress: "expo:bob"}))

	// When A messages an offline B
	outcome, err := f.service.SendMessage(ctx, textCmd("alice", "bob", "hi"))
	req.NoError(err)
	req.Equal(domain.OutcomeStored, outcome)

	// Then the durable record exists and round-trips through decryption
	views, err := f.service.GetMessages("alice", "bob", nil)
	req.NoError(err)
	req.Len(views, 1)
	req.Equal("hi", views[0].Content)

	// And the persisted blob is not the plaintext
	stored, err := f.messages.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.NotEqual([]byte("hi"), stored[0].Content)

	// And exactly one push went out, summarizing the text
	jobs := f.outbox.all()
	req.Len(jobs, 1)
	req.Equal([]string{"expo:bob"}, jobs[0].Addresses)
	req.Equal("Alice", jobs[0].Title)
	req.True(strings.Contains(jobs[0].Body, "hi"))
}

func TestSendMessage_Live_Receiver_Gets_Decrypted_Event(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()
	conn := newFakeConn()
	req.NoError(f.registry.Join(ctx, "bob", conn))

	outcome, err := f.service.SendMessage(ctx, textCmd("alice", "bob", "there"))
	req.NoError(err)
	req.Equal(domain.OutcomeDelivered, outcome)

	received := conn.events("receiveMessage")
	req.Len(received, 1)
	evt := received[0].(event.MessageReceived)
	req.Equal("there", evt.Content)
	req.Equal("alice", evt.SenderID)

	// Durability preceded delivery: the record is fetchable with the
	// identical content.
	views, err := f.service.GetMessages("bob", "alice", nil)
	req.NoError(err)
	req.Len(views, 1)
	req.Equal("there", views[0].Content)
}

func TestSendMessage_Stale_Handle_Is_Evicted_And_Degrades_To_Stored(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()
	conn := newFakeConn()
	req.NoError(f.registry.Join(ctx, "bob", conn))

	// Given bob's transport died without unregistering
	conn.Close("network gone")

	outcome, err := f.service.SendMessage(ctx, textCmd("alice", "bob", "anyone home?"))
	req.NoError(err)
	req.Equal(domain.OutcomeStored, outcome)

	// The stale entry is gone from the registry
	_, online := f.registry.Lookup("bob")
	req.False(online)
	req.Empty(conn.events("receiveMessage"))
}

func TestSendMessage_Image_And_Post_Payloads_Pass_Through(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()
	conn := newFakeConn()
	req.NoError(f.registry.Join(ctx, "bob", conn))

	outcome, err := f.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID:   "alice",
		ReceiverID: "bob",
		Type:       domain.MessageImage,
		Media:      []domain.MediaDescriptor{{URL: "https://cdn/img.png", MimeType: "image/png"}},
	})
	req.NoError(err)
	req.Equal(domain.OutcomeDelivered, outcome)

	outcome, err = f.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID:   "alice",
		ReceiverID: "bob",
		Type:       domain.MessagePost,
		PostID:     "post-42",
	})
	req.NoError(err)
	req.Equal(domain.OutcomeDelivered, outcome)

	received := conn.events("receiveMessage")
	req.Len(received, 2)
	req.Equal("https://cdn/img.png", received[0].(event.MessageReceived).Media[0].URL)
	req.Equal("post-42", received[1].(event.MessageReceived).PostID)
}

func TestMarkMessageRead_Notifies_Live_Sender_Once(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()
	senderConn := newFakeConn()
	req.NoError(f.registry.Join(ctx, "alice", senderConn))

	_, err := f.service.SendMessage(ctx, textCmd("alice", "bob", "read me"))
	req.NoError(err)
	views, err := f.service.GetMessages("alice", "bob", nil)
	req.NoError(err)
	messageID := views[0].ID

	// First mark emits a read receipt to the live sender
	updated, err := f.service.MarkMessageRead(ctx, messageID)
	req.NoError(err)
	req.True(updated.Read)
	receipts := senderConn.events("readReceipt")
	req.Len(receipts, 1)
	req.Equal(messageID, receipts[0].(event.ReadReceipt).MessageID)

	// Marking again is a no-op success with no second receipt
	again, err := f.service.MarkMessageRead(ctx, messageID)
	req.NoError(err)
	req.Equal(updated.ReadAt, again.ReadAt)
	req.Len(senderConn.events("readReceipt"), 1)
}

func TestSendMessage_Scenario_Offline_Then_Reconnect(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()
	req.NoError(f.directory.Save(domain.Profile{ID: "bob", PushAddress: "expo:bob"}))

	// Given user A online, user B offline
	aliceConn := newFakeConn()
	req.NoError(f.registry.Join(ctx, "alice", aliceConn))

	// When A sends "hi" to B
	outcome, err := f.service.SendMessage(ctx, textCmd("alice", "bob", "hi"))
	req.NoError(err)
	req.Equal(domain.OutcomeStored, outcome)
	jobs := f.outbox.all()
	req.Len(jobs, 1)
	req.Contains(jobs[0].Body, "hi")

	// And B joins with a new connection
	bobConn := newFakeConn()
	req.NoError(f.registry.Join(ctx, "bob", bobConn))

	// Then the next message is delivered live, decrypted
	outcome, err = f.service.SendMessage(ctx, textCmd("alice", "bob", "there"))
	req.NoError(err)
	req.Equal(domain.OutcomeDelivered, outcome)
	received := bobConn.events("receiveMessage")
	req.Len(received, 1)
	req.Equal("there", received[0].(event.MessageReceived).Content)

	// And B can fetch the full history in order
	views, err := f.service.GetMessages("bob", "alice", nil)
	req.NoError(err)
	req.Len(views, 2)
	req.Equal("hi", views[0].Content)
	req.Equal("there", views[1].Content)

	// And the conversation list surfaces the partner
	summaries, err := f.service.GetConversationList("bob")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal("alice", summaries[0].PartnerID)
}

func TestClearConversation(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.service.SendMessage(ctx, textCmd("alice", "bob", "soon gone"))
	req.NoError(err)
	req.NoError(f.service.ClearConversation("alice", "bob"))

	views, err := f.service.GetMessages("alice", "bob", nil)
	req.NoError(err)
	req.Empty(views)
}
