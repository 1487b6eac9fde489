package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"presencehub/contract"
	"presencehub/domain/event"
)

// Registry is the authoritative, process-local presence map: user id to
// active connection handle. At most one connection is active per user;
// a newer join supersedes and closes the previous handle (last writer wins).
//
// All mutations happen under one mutex so the compare-and-act sequences
// (close-old-then-install, remove-only-if-same-handle) never interleave.
// Nothing blocking runs under the lock: deliveries happen on snapshots
// taken inside the critical section and pushed outside it.
type Registry struct {
	mu    sync.Mutex
	log   *slog.Logger
	conns map[string]contract.Conn
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, conns: make(map[string]contract.Conn)}
}

// Join installs conn as the active handle for userID. If another still-open
// handle is registered for the same user it is closed first. Every join
// broadcasts the full online user list to all connections.
func (r *Registry) Join(ctx context.Context, userID string, conn contract.Conn) error {
	r.mu.Lock()
	if old, ok := r.conns[userID]; ok && old.ID() != conn.ID() {
		// Close only signals the transport; it must not block.
		old.Close("superseded by newer connection")
		r.log.Debug("Superseded connection closed", "user_id", userID, "conn_id", old.ID())
	}
	r.conns[userID] = conn
	online, targets := r.snapshotLocked()
	r.mu.Unlock()

	r.broadcast(ctx, targets, event.OnlineUsers{Users: online})
	return nil
}

// Lookup is a non-blocking read of the active handle for userID.
func (r *Registry) Lookup(userID string) (contract.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Remove deletes the mapping only if the stored handle still is conn,
// guarding against the race where a newer connection for the same user
// already replaced it. Presence is re-broadcast only on actual removal.
func (r *Registry) Remove(ctx context.Context, userID string, conn contract.Conn) bool {
	r.mu.Lock()
	stored, ok := r.conns[userID]
	if !ok || stored.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	online, targets := r.snapshotLocked()
	r.mu.Unlock()

	r.broadcast(ctx, targets, event.OnlineUsers{Users: online})
	return true
}

// Online returns the sorted ids of currently connected users.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	online := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		online = append(online, userID)
	}
	sort.Strings(online)
	return online
}

// Sweep evicts every entry whose handle no longer reports open, using the
// same compare-and-remove rule as Remove, and emits one shared presence
// broadcast for the whole batch. Returns the evicted user ids.
func (r *Registry) Sweep(ctx context.Context) []string {
	r.mu.Lock()
	var evicted []string
	for userID, conn := range r.conns {
		if conn.IsOpen() {
			continue
		}
		delete(r.conns, userID)
		evicted = append(evicted, userID)
	}
	online, targets := r.snapshotLocked()
	r.mu.Unlock()

	if len(evicted) == 0 {
		return nil
	}
	r.log.Info("Evicted stale connections", "count", len(evicted))
	r.broadcast(ctx, targets, event.OnlineUsers{Users: online})
	return evicted
}

// ToUser delivers an event to the user's live connection, if any.
func (r *Registry) ToUser(ctx context.Context, userID string, e event.Event) error {
	conn, ok := r.Lookup(userID)
	if !ok {
		return nil
	}
	return conn.Deliver(ctx, e)
}

// Broadcast delivers an event to every connected client, best effort.
func (r *Registry) Broadcast(ctx context.Context, e event.Event) {
	r.mu.Lock()
	_, targets := r.snapshotLocked()
	r.mu.Unlock()
	r.broadcast(ctx, targets, e)
}

// snapshotLocked captures the online id list and the connections to notify.
// Callers must hold the mutex.
func (r *Registry) snapshotLocked() ([]string, []contract.Conn) {
	online := make([]string, 0, len(r.conns))
	targets := make([]contract.Conn, 0, len(r.conns))
	for userID, conn := range r.conns {
		online = append(online, userID)
		targets = append(targets, conn)
	}
	sort.Strings(online)
	return online, targets
}

func (r *Registry) broadcast(ctx context.Context, targets []contract.Conn, e event.Event) {
	for _, conn := range targets {
		if err := conn.Deliver(ctx, e); err != nil {
			r.log.Debug("Broadcast delivery failed", "conn_id", conn.ID(), "event", e.Name(), "error", err)
		}
	}
}
