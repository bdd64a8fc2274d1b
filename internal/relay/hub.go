// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package relay connects websocket viewers to the room state fed by a data
// provider. The hub owns all protocol state: client registration, per-client
// room subscriptions, inbound frame dispatch, and fan-out of presence, chat,
// and catalogue changes.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/NNTin/d-back/internal/logging"
	"github.com/NNTin/d-back/internal/metrics"
	"github.com/NNTin/d-back/internal/protocol"
	"github.com/NNTin/d-back/internal/provider"
	"github.com/NNTin/d-back/internal/room"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// DefaultRoomAlias is the room id clients may send to join whichever room the
// catalogue marks as default.
const DefaultRoomAlias = "default"

// inboundFrame is one raw client frame awaiting dispatch.
type inboundFrame struct {
	client *Client
	raw    []byte
}

// joinPayload is the server-join reply body.
type joinPayload struct {
	Server room.Info     `json:"server"`
	Users  []room.Member `json:"users"`
}

// presencePayload is the presence broadcast body.
type presencePayload struct {
	UID    string      `json:"uid"`
	Status room.Status `json:"status"`
}

// messagePayload is the chat broadcast body.
type messagePayload struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

// leavePayload is the user-leave broadcast body.
type leavePayload struct {
	UID string `json:"uid"`
}

// Hub maintains the set of active clients, their room subscriptions, and the
// room store, and fans provider events and chat out to subscribers.
//
// All protocol state is mutated only from the run loop, so a frame is always
// dispatched against a consistent registry and a broadcast never observes a
// half-applied subscription change.
type Hub struct {
	store    *room.Store
	provider provider.Provider

	Register   chan *Client
	Unregister chan *Client
	inbound    chan inboundFrame

	// done is closed when the run loop exits, releasing read pumps that
	// would otherwise block handing their connection back.
	done chan struct{}

	mu      sync.RWMutex
	clients map[*Client]bool
	subs    map[*Client]string // client -> subscribed room id, "" when unsubscribed
}

// NewHub creates a hub serving the given store from the given provider.
func NewHub(store *room.Store, prov provider.Provider) *Hub {
	return &Hub{
		store:      store,
		provider:   prov,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 256),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		subs:       make(map[*Client]string),
	}
}

// RunWithContext loads the initial catalogue and runs the dispatch loop until
// the context is canceled. Designed for suture supervision: on cancellation
// all clients are closed and ctx.Err() is returned.
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Inbound frames and provider events
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.loadCatalogue(ctx)
	events := h.provider.Events()

	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.handleRegister(client)
			continue
		case client := <-h.Unregister:
			h.handleUnregister(client)
			continue
		default:
		}

		// Priority 3: Dispatch frames and events, or wait (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			h.handleInbound(msg)

		case ev := <-events:
			h.handleEvent(ctx, ev)
		}
	}
}

// loadCatalogue seeds the store from the provider. A provider that has no
// data yet (live adapter before its first poll) seeds an empty catalogue and
// fills it through room-add events.
func (h *Hub) loadCatalogue(ctx context.Context) {
	rooms, err := h.provider.ListRooms(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("initial catalogue load failed, starting empty")
	}

	members := make(map[string][]room.Member, len(rooms))
	for _, info := range rooms {
		list, err := h.provider.ListMembers(ctx, info.ID)
		if err != nil {
			logging.Warn().Err(err).Str("room", info.ID).Msg("member load failed")
			continue
		}
		members[info.ID] = list
	}

	h.store.Reset(rooms, members)
	logging.Info().Int("rooms", len(rooms)).Msg("room catalogue loaded")
}

// handleRegister admits a client: it is tracked, counted, and receives the
// room catalogue before any other frame.
func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	h.subs[c] = ""
	metrics.ConnectedViewers.Inc()
	h.trySendLocked(c, h.serverListFrame())
	logging.Info().
		Uint64("client_id", c.id).
		Str("viewer", c.viewer.UID).
		Int("total_clients", len(h.clients)).
		Msg("websocket client connected")
}

// handleUnregister removes a disconnected client and notifies its former room.
func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	h.detachViewerLocked(c)
	delete(h.clients, c)
	delete(h.subs, c)
	close(c.send)
	metrics.ConnectedViewers.Dec()
	logging.Info().
		Uint64("client_id", c.id).
		Int("total_clients", len(h.clients)).
		Msg("websocket client disconnected")
}

// handleInbound decodes one client frame and dispatches it. Every rejection
// is answered with an error frame; client state never changes on rejection.
func (h *Hub) handleInbound(msg inboundFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[msg.client] {
		return
	}

	in, err := protocol.Decode(msg.raw)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			metrics.ProtocolErrors.WithLabelValues("unknown_type").Inc()
			h.sendErrorLocked(msg.client, fmt.Sprintf("unknown message type: %s", unknown.Type))
		} else {
			metrics.ProtocolErrors.WithLabelValues("malformed").Inc()
			h.sendErrorLocked(msg.client, "malformed message")
		}
		return
	}

	switch v := in.(type) {
	case *protocol.Connect:
		h.handleConnect(msg.client, v.Server)
	case *protocol.Chat:
		h.handleChat(msg.client, v.Message)
	}
}

// handleConnect subscribes a client to a room, moving it out of its previous
// room if necessary and fanning the viewer's membership out to the room.
func (h *Hub) handleConnect(c *Client, target string) {
	id := target
	if id == DefaultRoomAlias {
		id = h.defaultRoomID()
	}

	info, ok := h.store.Get(id)
	if !ok {
		metrics.ProtocolErrors.WithLabelValues("unknown_room").Inc()
		h.sendErrorLocked(c, fmt.Sprintf("unknown server: %s", target))
		return
	}

	if info.Passworded && c.anonymous {
		metrics.ProtocolErrors.WithLabelValues("unauthorized").Inc()
		h.sendErrorLocked(c, fmt.Sprintf("authentication required for server: %s", info.ID))
		return
	}

	// Re-connecting to the current room is idempotent: fresh snapshot, no
	// duplicate membership fan-out.
	if h.subs[c] != info.ID {
		h.detachViewerLocked(c)
		h.subs[c] = info.ID

		prevRoom, joined, err := h.store.AddMember(info.ID, c.viewer)
		if err != nil {
			// Room vanished between Get and AddMember; treat as unknown.
			h.subs[c] = ""
			metrics.ProtocolErrors.WithLabelValues("unknown_room").Inc()
			h.sendErrorLocked(c, fmt.Sprintf("unknown server: %s", target))
			return
		}
		if prevRoom != "" {
			// Same viewer identity was a member elsewhere (second tab).
			h.broadcastRoomLocked(prevRoom, protocol.Frame{
				Type:   protocol.TypeUserLeave,
				Server: prevRoom,
				Data:   leavePayload{UID: c.viewer.UID},
			}, c)
		}
		if joined {
			h.broadcastRoomLocked(info.ID, protocol.Frame{
				Type:   protocol.TypeUserJoin,
				Server: info.ID,
				Data:   c.viewer,
			}, c)
		}
	}

	members, _ := h.store.Members(info.ID)
	h.trySendLocked(c, protocol.Frame{
		Type: protocol.TypeServerJoin,
		Data: joinPayload{Server: info, Users: members},
	})
	logging.Debug().
		Uint64("client_id", c.id).
		Str("room", info.ID).
		Msg("client joined room")
}

// handleChat relays a chat line to the sender's current room, sender included.
func (h *Hub) handleChat(c *Client, text string) {
	rid := h.subs[c]
	if rid == "" {
		metrics.ProtocolErrors.WithLabelValues("not_subscribed").Inc()
		h.sendErrorLocked(c, "not connected to a server")
		return
	}

	h.broadcastRoomLocked(rid, protocol.Frame{
		Type:   protocol.TypeMessage,
		Server: rid,
		Data:   messagePayload{UID: c.viewer.UID, Message: text, Channel: provider.DefaultChannel},
	}, nil)
}

// handleEvent applies one provider event to the store and fans the change out.
func (h *Hub) handleEvent(ctx context.Context, ev provider.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Type {
	case provider.EventPresence:
		if m, ok := h.store.SetStatus(ev.Room, ev.Member.UID, ev.Member.Status); ok {
			h.broadcastRoomLocked(ev.Room, protocol.Frame{
				Type:   protocol.TypePresence,
				Server: ev.Room,
				Data:   presencePayload{UID: m.UID, Status: m.Status},
			}, nil)
		}

	case provider.EventMessage:
		if _, ok := h.store.Get(ev.Room); ok {
			h.broadcastRoomLocked(ev.Room, protocol.Frame{
				Type:   protocol.TypeMessage,
				Server: ev.Room,
				Data:   messagePayload{UID: ev.Member.UID, Message: ev.Text, Channel: ev.Channel},
			}, nil)
		}

	case provider.EventMemberJoin, provider.EventMemberMove:
		prevRoom, joined, err := h.store.AddMember(ev.Room, ev.Member)
		if err != nil {
			return
		}
		if prevRoom != "" {
			h.broadcastRoomLocked(prevRoom, protocol.Frame{
				Type:   protocol.TypeUserLeave,
				Server: prevRoom,
				Data:   leavePayload{UID: ev.Member.UID},
			}, nil)
		}
		if joined {
			h.broadcastRoomLocked(ev.Room, protocol.Frame{
				Type:   protocol.TypeUserJoin,
				Server: ev.Room,
				Data:   ev.Member,
			}, nil)
		}

	case provider.EventMemberLeave:
		if m, ok := h.store.RemoveMember(ev.Room, ev.Member.UID); ok {
			h.broadcastRoomLocked(ev.Room, protocol.Frame{
				Type:   protocol.TypeUserLeave,
				Server: ev.Room,
				Data:   leavePayload{UID: m.UID},
			}, nil)
		}

	case provider.EventRoomAdd:
		h.store.AddRoom(ev.Info)
		members, err := h.provider.ListMembers(ctx, ev.Info.ID)
		if err == nil {
			for _, m := range members {
				prevRoom, _, err := h.store.AddMember(ev.Info.ID, m)
				if err != nil {
					continue
				}
				// A seed member pulled out of another room must not linger
				// there as a ghost.
				if prevRoom != "" {
					h.broadcastRoomLocked(prevRoom, protocol.Frame{
						Type:   protocol.TypeUserLeave,
						Server: prevRoom,
						Data:   leavePayload{UID: m.UID},
					}, nil)
				}
			}
		}
		h.broadcastAllLocked(h.serverListFrame())
		logging.Info().Str("room", ev.Info.ID).Msg("room added to catalogue")

	case provider.EventRoomRemove:
		h.removeRoomLocked(ev.Room)
	}
}

// removeRoomLocked unsubscribes every viewer of a vanishing room, drops the
// room, and rebroadcasts the catalogue.
func (h *Hub) removeRoomLocked(rid string) {
	if _, ok := h.store.Get(rid); !ok {
		return
	}
	for _, c := range h.sortedClientsLocked() {
		if h.subs[c] != rid {
			continue
		}
		h.subs[c] = ""
		h.trySendLocked(c, protocol.Frame{
			Type:   protocol.TypeUserLeave,
			Server: rid,
			Data:   leavePayload{UID: c.viewer.UID},
		})
	}
	h.store.RemoveRoom(rid)
	h.broadcastAllLocked(h.serverListFrame())
	logging.Info().Str("room", rid).Msg("room removed from catalogue")
}

// detachViewerLocked removes the client's viewer from its subscribed room and
// notifies the remaining members. No-op for unsubscribed clients.
func (h *Hub) detachViewerLocked(c *Client) {
	rid := h.subs[c]
	if rid == "" {
		return
	}
	h.subs[c] = ""
	if m, ok := h.store.RemoveMember(rid, c.viewer.UID); ok {
		h.broadcastRoomLocked(rid, protocol.Frame{
			Type:   protocol.TypeUserLeave,
			Server: rid,
			Data:   leavePayload{UID: m.UID},
		}, c)
	}
}

// serverListFrame builds the catalogue frame sent at admission and on
// catalogue changes.
func (h *Hub) serverListFrame() protocol.Frame {
	return protocol.Frame{Type: protocol.TypeServerList, Data: h.store.Catalogue()}
}

// defaultRoomID resolves the catalogue's default room, falling back to the
// first room when none is marked.
func (h *Hub) defaultRoomID() string {
	list := h.store.List()
	for _, info := range list {
		if info.Default {
			return info.ID
		}
	}
	if len(list) > 0 {
		return list[0].ID
	}
	return ""
}

// sendErrorLocked replies with an error frame carrying a top-level message.
func (h *Hub) sendErrorLocked(c *Client, msg string) {
	h.trySendLocked(c, protocol.Frame{Type: protocol.TypeError, Message: msg})
}

// trySendLocked queues a frame for one client without blocking. Returns false
// when the client's send buffer is full.
func (h *Hub) trySendLocked(c *Client, f protocol.Frame) bool {
	select {
	case c.send <- f:
		metrics.FramesSent.WithLabelValues(f.Type).Inc()
		return true
	default:
		return false
	}
}

// broadcastRoomLocked delivers a frame to every client subscribed to a room,
// in deterministic client-id order. Clients whose send buffer is full are
// dropped from the hub; the room is told they left.
func (h *Hub) broadcastRoomLocked(rid string, f protocol.Frame, except *Client) {
	var toRemove []*Client
	for _, c := range h.sortedClientsLocked() {
		if c == except || h.subs[c] != rid {
			continue
		}
		if !h.trySendLocked(c, f) {
			toRemove = append(toRemove, c)
		}
	}
	for _, c := range toRemove {
		h.dropLocked(c, "slow_client")
	}
}

// broadcastAllLocked delivers a frame to every connected client in
// deterministic client-id order.
func (h *Hub) broadcastAllLocked(f protocol.Frame) {
	var toRemove []*Client
	for _, c := range h.sortedClientsLocked() {
		if !h.trySendLocked(c, f) {
			toRemove = append(toRemove, c)
		}
	}
	for _, c := range toRemove {
		h.dropLocked(c, "slow_client")
	}
}

// dropLocked force-unregisters a client that can no longer keep up. Only the
// offending client is affected; its former room is notified.
func (h *Hub) dropLocked(c *Client, reason string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	metrics.FramesDropped.WithLabelValues(reason).Inc()
	h.detachViewerLocked(c)
	delete(h.clients, c)
	delete(h.subs, c)
	close(c.send)
	metrics.ConnectedViewers.Dec()
	logging.Warn().
		Uint64("client_id", c.id).
		Str("reason", reason).
		Msg("dropped unresponsive websocket client")
}

// sortedClientsLocked returns all clients ordered by their registration id.
// DETERMINISM: Sorting gives every broadcast a consistent delivery order.
func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// notifyDisconnect hands a closed connection back to the run loop, or gives
// up once the hub has shut down and no loop is left to receive it.
func (h *Hub) notifyDisconnect(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. Context cancellation is expected behavior, so it is not
// logged as an error.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	close(h.done)

	h.mu.Lock()
	clientCount := len(h.clients)
	for _, c := range h.sortedClientsLocked() {
		close(c.send)
		delete(h.clients, c)
		delete(h.subs, c)
	}
	metrics.ConnectedViewers.Set(0)
	h.mu.Unlock()

	logging.Info().
		Str("component", "relay-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("relay hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}
