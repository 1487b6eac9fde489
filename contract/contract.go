//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"presencehub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is one live bidirectional channel to a client process.
// Implementations must make Deliver and Close safe for concurrent use;
// the registry, the reaper and the delivery engine all touch the same handle.
type Conn interface {
	// ID distinguishes two connections belonging to the same user,
	// which is what the compare-and-remove paths key on.
	ID() string
	Deliver(ctx context.Context, e event.Event) error
	IsOpen() bool
	Close(reason string)
}

// IRegistry is the authoritative presence map: user id -> active Conn.
type IRegistry interface {
	Join(ctx context.Context, userID string, conn Conn) error
	Lookup(userID string) (Conn, bool)
	Remove(ctx context.Context, userID string, conn Conn) bool
	Online() []string
}

// EventSink is the live-delivery capability consumed by the delivery
// engine and the notification dispatcher. The presence registry implements
// it on top of the connections the transport adapter feeds in.
type EventSink interface {
	ToUser(ctx context.Context, userID string, e event.Event) error
	Broadcast(ctx context.Context, e event.Event)
}

// PushSender is the offline push channel. Fire-and-forget from the core's
// perspective: errors are logged by callers, never propagated to senders.
type PushSender interface {
	SendOne(ctx context.Context, address, title, body string, data map[string]string) error
	SendBatch(ctx context.Context, addresses []string, title, body string, data map[string]string) error
}

// PushJob is one pending offline-push delivery. One address means a single
// send; several mean one batched send.
type PushJob struct {
	Addresses []string
	Title     string
	Body      string
	Data      map[string]string
}

// PushQueue decouples the services from push execution so retries or
// back-pressure can be added without touching call sites. Enqueue never
// blocks; a full queue drops the job and returns false.
type PushQueue interface {
	Enqueue(job PushJob) bool
}
