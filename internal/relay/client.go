// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package relay

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NNTin/d-back/internal/auth"
	"github.com/NNTin/d-back/internal/logging"
	"github.com/NNTin/d-back/internal/protocol"
	"github.com/NNTin/d-back/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, ample for connect/chat frames
)

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// DETERMINISM: This ensures clients can be sorted in a consistent order for
// broadcast operations, eliminating non-deterministic map iteration order.
var clientIDCounter atomic.Uint64

// Role colors for viewer identities; Discord blurple for authenticated
// viewers, greyple for guests.
const (
	viewerColor = "#7289da"
	guestColor  = "#99aab5"
)

// Client is a middleman between one websocket connection and the hub.
// Every client carries a viewer identity that appears as a room member while
// the client is subscribed.
type Client struct {
	// id is a unique identifier for this client, used for deterministic
	// broadcast ordering. Assigned from an atomic counter.
	id        uint64
	hub       *Hub
	conn      *websocket.Conn
	send      chan protocol.Frame
	viewer    room.Member
	anonymous bool
}

// NewClient creates a new Client with a unique deterministic ID and a viewer
// member derived from the resolved identity.
func NewClient(hub *Hub, conn *websocket.Conn, identity auth.Identity) *Client {
	color := viewerColor
	if identity.Anonymous {
		color = guestColor
	}
	return &Client{
		id:        clientIDCounter.Add(1),
		hub:       hub,
		conn:      conn,
		send:      make(chan protocol.Frame, 256),
		anonymous: identity.Anonymous,
		viewer: room.Member{
			UID:       identity.UID,
			Username:  identity.Username,
			Status:    room.StatusOnline,
			RoleColor: color,
		},
	}
}

// ID returns the client's unique identifier for deterministic ordering.
func (c *Client) ID() uint64 {
	return c.id
}

// Viewer returns the member entry this connection contributes to rooms.
func (c *Client) Viewer() room.Member {
	return c.viewer
}

// readPump pumps raw frames from the websocket connection to the hub
// dispatcher. Decoding happens in the hub's run loop so protocol state is
// only ever touched by one goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.notifyDisconnect(c)
		_ = c.conn.Close() // best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}
		c.hub.inbound <- inboundFrame{client: c, raw: raw}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			payload, err := protocol.Encode(frame)
			if err != nil {
				logging.Error().Err(err).Str("frame_type", frame.Type).Msg("failed to encode frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Error().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
