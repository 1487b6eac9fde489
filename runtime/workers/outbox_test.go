package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"presencehub/contract"
	"presencehub/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPushOutbox_Single_Address_Uses_SendOne(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockPushSender(ctrl)

	sent := make(chan struct{})
	sender.EXPECT().
		SendOne(gomock.Any(), "expo:bob", "Alice", "hi", gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string, map[string]string) error {
			close(sent)
			return nil
		}).
		Times(1)

	outbox := NewPushOutbox(slog.Default(), sender, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outbox.Run(ctx)

	req.True(outbox.Enqueue(contract.PushJob{
		Addresses: []string{"expo:bob"},
		Title:     "Alice",
		Body:      "hi",
	}))

	select {
	case <-sent:
	case <-time.After(time.Second):
		req.Fail("push was never dispatched")
	}
}

func TestPushOutbox_Multiple_Addresses_Use_One_Batch_Call(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockPushSender(ctrl)

	sent := make(chan []string, 1)
	sender.EXPECT().
		SendBatch(gomock.Any(), gomock.Any(), "Maintenance", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, addresses []string, _, _ string, _ map[string]string) error {
			sent <- addresses
			return nil
		}).
		Times(1)

	outbox := NewPushOutbox(slog.Default(), sender, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outbox.Run(ctx)

	outbox.Enqueue(contract.PushJob{
		Addresses: []string{"expo:alice", "expo:carol"},
		Title:     "Maintenance",
		Body:      "downtime",
	})

	select {
	case addresses := <-sent:
		req.ElementsMatch([]string{"expo:alice", "expo:carol"}, addresses)
	case <-time.After(time.Second):
		req.Fail("batch push was never dispatched")
	}
}

func TestPushOutbox_Full_Queue_Drops_Without_Blocking(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockPushSender(ctrl)

	// Worker never started, so the buffer is all there is
	outbox := NewPushOutbox(slog.Default(), sender, 1)

	req.True(outbox.Enqueue(contract.PushJob{Addresses: []string{"a"}}))
	req.False(outbox.Enqueue(contract.PushJob{Addresses: []string{"b"}}))
}

func TestPushOutbox_Sender_Failure_Is_Swallowed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockPushSender(ctrl)

	attempts := make(chan struct{}, 2)
	sender.EXPECT().
		SendOne(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string, map[string]string) error {
			attempts <- struct{}{}
			return context.DeadlineExceeded
		}).
		Times(2)

	outbox := NewPushOutbox(slog.Default(), sender, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outbox.Run(ctx)

	// A failed push never poisons the queue for the next job
	outbox.Enqueue(contract.PushJob{Addresses: []string{"a"}, Title: "t", Body: "b"})
	outbox.Enqueue(contract.PushJob{Addresses: []string{"b"}, Title: "t", Body: "b"})

	for i := 0; i < 2; i++ {
		select {
		case <-attempts:
		case <-time.After(time.Second):
			req.Fail("outbox stopped draining after a failure")
		}
	}
}
