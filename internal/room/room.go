// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package room holds the in-memory room and member state the relay serves.
package room

// Status is a member's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known presence states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusOffline:
		return true
	}
	return false
}

// Member is one user's presence inside a room. A member belongs to at most
// one room at any instant.
type Member struct {
	UID       string `json:"uid"`
	Username  string `json:"username"`
	Status    Status `json:"status"`
	RoleColor string `json:"roleColor,omitempty"`
}

// Info is a room's catalogue entry. Key is the stable catalogue key (a
// Discord snowflake for live data); ID is the short identifier clients use
// in connect requests. Neither changes for the lifetime of the room.
type Info struct {
	Key        string `json:"-"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Default    bool   `json:"default,omitempty"`
	Passworded bool   `json:"passworded,omitempty"`
}
