// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package protocol defines the websocket wire format.
//
// Every frame is a JSON object tagged with a non-empty "type". Room-scoped
// broadcast frames carry the room id in a top-level "server" field; the
// "error" frame carries a top-level "message" and no "data". Inbound bytes
// are decoded at the boundary into a closed set of typed variants - anything
// that does not match a known variant is rejected with a typed error and
// never propagates inward as an untyped object.
package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Frame types sent by the server.
const (
	TypeServerList = "server-list"
	TypeServerJoin = "server-join"
	TypeError      = "error"
	TypePresence   = "presence"
	TypeMessage    = "message"
	TypeUserJoin   = "user-join"
	TypeUserLeave  = "user-leave"
)

// Frame types accepted from clients.
const (
	TypeConnect = "connect"
	TypeChat    = "chat"
)

// Frame is one outbound protocol message.
type Frame struct {
	Type    string      `json:"type"`
	Server  string      `json:"server,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Encode serializes a frame for the wire.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// ErrMalformed reports input that is not a valid frame: broken JSON, a
// missing or empty type tag, or a payload without its required fields.
var ErrMalformed = errors.New("malformed frame")

// UnknownTypeError reports a structurally valid frame whose type is not part
// of the client vocabulary.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Inbound is a decoded client frame: one of *Connect or *Chat.
type Inbound interface {
	inbound()
}

// Connect requests subscription to a room.
type Connect struct {
	Server string
}

func (*Connect) inbound() {}

// Chat sends a chat message to the sender's current room.
type Chat struct {
	Message string
}

func (*Chat) inbound() {}

// envelope is the transport shell every inbound frame must match.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses raw client bytes into a typed inbound variant.
//
// Returns ErrMalformed for anything that is not a JSON object with a
// non-empty type and the required payload fields, and *UnknownTypeError for
// a well-formed frame outside the client vocabulary.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformed
	}
	if env.Type == "" {
		return nil, ErrMalformed
	}

	switch env.Type {
	case TypeConnect:
		var payload struct {
			Server string `json:"server"`
		}
		if err := unmarshalPayload(env.Data, &payload); err != nil {
			return nil, err
		}
		if payload.Server == "" {
			return nil, ErrMalformed
		}
		return &Connect{Server: payload.Server}, nil

	case TypeChat:
		var payload struct {
			Message string `json:"message"`
		}
		if err := unmarshalPayload(env.Data, &payload); err != nil {
			return nil, err
		}
		if payload.Message == "" {
			return nil, ErrMalformed
		}
		return &Chat{Message: payload.Message}, nil

	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

func unmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrMalformed
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrMalformed
	}
	return nil
}
