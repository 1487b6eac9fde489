package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"presencehub/contract"
	"presencehub/domain/event"
	"presencehub/errors"
	"presencehub/repositories"
)

type SessionState int

const (
	StateAnonymous SessionState = iota
	StateJoined
	StateDisconnected
)

// Session is the per-connection lifecycle state machine:
// CONNECTED_ANONYMOUS -> JOINED -> DISCONNECTED.
// The transport adapter owns exactly one Session per accepted connection and
// calls into it serially for that connection; the mutex only guards against
// the explicit-disconnect vs transport-close race.
type Session struct {
	log       *slog.Logger
	registry  contract.IRegistry
	directory repositories.IUserDirectory
	conn      contract.Conn

	mu     sync.Mutex
	state  SessionState
	userID string
}

func NewSession(log *slog.Logger, registry contract.IRegistry,
	directory repositories.IUserDirectory, conn contract.Conn) *Session {
	return &Session{log: log, registry: registry, directory: directory, conn: conn, state: StateAnonymous}
}

// Join validates the claimed identity, installs the connection in the
// presence registry and acknowledges the result to the client.
// An empty user id leaves the session anonymous with no registry mutation.
// A connection identifies at most once: a second join on an already-joined
// session is rejected, otherwise the first identity's registry entry would
// keep resolving to a connection now owned by someone else.
func (s *Session) Join(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		s.ack(ctx, event.JoinAcknowledged{Success: false})
		return fmt.Errorf("%w: empty user id", errors.ErrValidation)
	}

	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return errors.ErrNotJoined
	}
	if s.state == StateJoined {
		current := s.userID
		s.mu.Unlock()
		s.ack(ctx, event.JoinAcknowledged{Success: false, UserID: userID})
		return fmt.Errorf("%w: connection already identified as %s", errors.ErrAlreadyJoined, current)
	}
	s.state = StateJoined
	s.userID = userID
	s.mu.Unlock()

	if err := s.registry.Join(ctx, userID, s.conn); err != nil {
		s.ack(ctx, event.JoinAcknowledged{Success: false, UserID: userID})
		return err
	}

	// Last-activity refresh is best effort; a directory hiccup must not
	// undo a successful join.
	if err := s.directory.Touch(userID, time.Now().UTC()); err != nil {
		s.log.Warn("Last-activity refresh failed on join", "user_id", userID, "error", err)
	}

	s.ack(ctx, event.JoinAcknowledged{Success: true, UserID: userID})
	return nil
}

// Heartbeat refreshes the user's last-activity timestamp. It is honored only
// when the claimed id matches the identity remembered on this connection.
// The mismatch error is for the transport's log; nothing is sent back to
// the client, so a spoofed client learns nothing.
func (s *Session) Heartbeat(ctx context.Context, userID string) error {
	s.mu.Lock()
	honored := s.state == StateJoined && s.userID == userID
	s.mu.Unlock()
	if !honored {
		return fmt.Errorf("%w: claimed id %q", errors.ErrIdentityMismatch, userID)
	}

	if err := s.directory.Touch(userID, time.Now().UTC()); err != nil {
		s.log.Warn("Last-activity refresh failed on heartbeat", "user_id", userID, "error", err)
	}
	s.ack(ctx, event.HeartbeatAck{At: time.Now().UTC()})
	return nil
}

// Disconnect tears the session down. The registry removal is conditional on
// this connection still being the active one, so a newer join for the same
// user is never clobbered by a late disconnect.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	wasJoined := s.state == StateJoined
	userID := s.userID
	s.state = StateDisconnected
	s.mu.Unlock()

	if wasJoined {
		s.registry.Remove(ctx, userID, s.conn)
	}
}

// Error records an unsolicited transport error. State never changes here.
func (s *Session) Error(err error) {
	s.log.Warn("Transport error", "user_id", s.UserID(), "error", err)
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ack(ctx context.Context, e event.Event) {
	if err := s.conn.Deliver(ctx, e); err != nil {
		s.log.Debug("Acknowledgement delivery failed", "event", e.Name(), "error", err)
	}
}
