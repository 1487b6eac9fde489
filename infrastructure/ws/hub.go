// Package ws is the transport adapter: it accepts websocket connections,
// feeds join/heartbeat/disconnect events into the per-connection lifecycle
// session, and turns client requests into service calls. Core packages never
// see a websocket; they only see contract.Conn handles.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"presencehub/domain"
	"presencehub/runtime"
	"presencehub/services"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// request is the wire envelope for client-to-server frames.
type request struct {
	Action     string                   `json:"action"`
	UserID     string                   `json:"user_id,omitempty"`
	ReceiverID string                   `json:"receiver_id,omitempty"`
	Type       domain.MessageType       `json:"type,omitempty"`
	Content    string                   `json:"content,omitempty"`
	Media      []domain.MediaDescriptor `json:"media,omitempty"`
	PostID     string                   `json:"post_id,omitempty"`
	MessageID  string                   `json:"message_id,omitempty"`
}

// sendAck is the acknowledgement channel back to a message sender: one of
// delivered/stored/error per sendMessage request.
type sendAck struct {
	Outcome domain.DeliveryOutcome `json:"outcome"`
	Error   string                 `json:"error,omitempty"`
}

func (sendAck) Name() string { return "sendAck" }

type Hub struct {
	log        *slog.Logger
	registry   *runtime.Registry
	sessions   func(conn *Client) *runtime.Session
	messages   services.IMessageService
	bufferSize int
}

func NewHub(log *slog.Logger, registry *runtime.Registry,
	newSession func(conn *Client) *runtime.Session,
	messages services.IMessageService, bufferSize int) *Hub {
	return &Hub{
		log:        log,
		registry:   registry,
		sessions:   newSession,
		messages:   messages,
		bufferSize: bufferSize,
	}
}

// HandleWS upgrades the request and runs the connection until the client
// goes away. One lifecycle session per connection; cleanup goes through the
// session's conditional disconnect so a newer join is never clobbered.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(context.Background(), conn, h.bufferSize)
	session := h.sessions(client)
	go client.writeLoop()

	defer func() {
		session.Disconnect(context.Background())
		client.Close("connection handler finished")
	}()

	h.readLoop(client, session)
}

func (h *Hub) readLoop(client *Client, session *runtime.Session) {
	for {
		_, data, err := client.conn.Read(client.ctx)
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			session.Error(err)
			continue
		}
		h.handle(client, session, req)
	}
}

func (h *Hub) handle(client *Client, session *runtime.Session, req request) {
	ctx := client.ctx
	switch req.Action {
	case "join":
		if err := session.Join(ctx, req.UserID); err != nil {
			h.log.Debug("Join rejected", "error", err)
		}
	case "heartbeat":
		if err := session.Heartbeat(ctx, req.UserID); err != nil {
			h.log.Debug("Heartbeat ignored", "error", err)
		}
	case "sendMessage":
		h.handleSend(ctx, client, session, req)
	case "markRead":
		h.handleMarkRead(ctx, client, session, req)
	case "leave":
		session.Disconnect(ctx)
	default:
		h.log.Debug("Unknown action ignored", "action", req.Action)
	}
}

func (h *Hub) handleSend(ctx context.Context, client *Client, session *runtime.Session, req request) {
	senderID := session.UserID()
	if senderID == "" {
		h.ack(ctx, client, sendAck{Outcome: domain.OutcomeError, Error: "join first"})
		return
	}
	outcome, err := h.messages.SendMessage(ctx, domain.SendMessageCommand{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Type:       req.Type,
		Content:    req.Content,
		Media:      req.Media,
		PostID:     req.PostID,
	})
	ack := sendAck{Outcome: outcome}
	if err != nil {
		ack.Error = err.Error()
	}
	h.ack(ctx, client, ack)
}

func (h *Hub) handleMarkRead(ctx context.Context, client *Client, session *runtime.Session, req request) {
	if session.UserID() == "" {
		return
	}
	id, err := uuid.Parse(req.MessageID)
	if err != nil {
		session.Error(err)
		return
	}
	if _, err := h.messages.MarkMessageRead(ctx, id); err != nil {
		h.log.Debug("Mark read failed", "message_id", req.MessageID, "error", err)
	}
}

func (h *Hub) ack(ctx context.Context, client *Client, ack sendAck) {
	deliverCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := client.Deliver(deliverCtx, ack); err != nil {
		h.log.Debug("Ack delivery failed", "conn_id", client.ID(), "error", err)
	}
}
