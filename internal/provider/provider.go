// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package provider defines the data-provider capability that feeds room and
// member truth into the relay.
//
// Two implementations are interchangeable: Mock generates synthetic Discord
// activity for development and testing, and Discord polls a live widget API.
// The relay depends only on the Provider interface and selects one at
// startup; it never branches on the concrete type.
package provider

import (
	"context"

	"github.com/NNTin/d-back/internal/room"
)

// EventType identifies a provider-driven change.
type EventType string

const (
	EventMemberJoin  EventType = "member-join"
	EventMemberLeave EventType = "member-leave"
	EventMemberMove  EventType = "member-move"
	EventPresence    EventType = "presence"
	EventMessage     EventType = "message"
	EventRoomAdd     EventType = "room-add"
	EventRoomRemove  EventType = "room-remove"
)

// Event is one change pushed by a provider. Room is the affected room id;
// the remaining fields are populated per event type: Member for member
// events (carrying the new status for EventPresence), PrevRoom for
// EventMemberMove, Text/Channel for EventMessage, Info for EventRoomAdd.
type Event struct {
	Type     EventType
	Room     string
	PrevRoom string
	Member   room.Member
	Text     string
	Channel  string
	Info     room.Info
}

// Provider supplies the room catalogue and member sets, and pushes change
// events on its Events channel while Run is active.
//
// Run drives polling or simulation until the context is canceled and is
// shaped to serve as a suture.Service. ListRooms and ListMembers must be
// safe to call concurrently with Run.
type Provider interface {
	ListRooms(ctx context.Context) ([]room.Info, error)
	ListMembers(ctx context.Context, roomID string) ([]room.Member, error)
	Events() <-chan Event
	Run(ctx context.Context) error
}
