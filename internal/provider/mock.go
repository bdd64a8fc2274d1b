// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package provider

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/NNTin/d-back/internal/logging"
	"github.com/NNTin/d-back/internal/metrics"
	"github.com/NNTin/d-back/internal/room"
)

// MockConfig controls the pacing of simulated activity.
type MockConfig struct {
	// PresenceInterval is how often a random member's status flips.
	// Default: 4s
	PresenceInterval time.Duration

	// MessageInterval is how often a random member says something.
	// Default: 5s
	MessageInterval time.Duration

	// ChurnInterval is how often a member joins, leaves, or moves rooms.
	// Default: 20s
	ChurnInterval time.Duration
}

// DefaultMockConfig returns the default simulation pacing.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		PresenceInterval: 4 * time.Second,
		MessageInterval:  5 * time.Second,
		ChurnInterval:    20 * time.Second,
	}
}

// Mock simulates a Discord-like environment: a fixed catalogue of rooms
// whose members flip presence, chat, and occasionally join, leave, or move.
// Intended for development and testing; never connects anywhere.
type Mock struct {
	cfg    MockConfig
	events chan Event

	mu        sync.RWMutex
	rooms     []room.Info
	members   map[string][]room.Member
	sidelined []room.Member

	// limiter caps the total event rate so short intervals in tests
	// cannot flood the relay.
	limiter *rate.Limiter
}

var mockStatuses = []room.Status{room.StatusOnline, room.StatusIdle, room.StatusDND, room.StatusOffline}

// NewMock creates a mock provider seeded with the built-in catalogue.
func NewMock(cfg MockConfig) *Mock {
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = 4 * time.Second
	}
	if cfg.MessageInterval <= 0 {
		cfg.MessageInterval = 5 * time.Second
	}
	if cfg.ChurnInterval <= 0 {
		cfg.ChurnInterval = 20 * time.Second
	}
	return &Mock{
		cfg:     cfg,
		events:  make(chan Event, 64),
		rooms:   mockRooms(),
		members: mockMembers(),
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// ListRooms returns the current room catalogue.
func (m *Mock) ListRooms(_ context.Context) ([]room.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]room.Info, len(m.rooms))
	copy(out, m.rooms)
	return out, nil
}

// ListMembers returns the current members of a room.
func (m *Mock) ListMembers(_ context.Context, roomID string) ([]room.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.members[roomID]
	if !ok {
		return nil, room.ErrNotFound
	}
	out := make([]room.Member, len(members))
	copy(out, members)
	return out, nil
}

// Events returns the simulated activity stream.
func (m *Mock) Events() <-chan Event {
	return m.events
}

// Run drives the simulation until the context is canceled.
// Implements the suture.Service shape.
func (m *Mock) Run(ctx context.Context) error {
	presence := time.NewTicker(m.cfg.PresenceInterval)
	defer presence.Stop()
	message := time.NewTicker(m.cfg.MessageInterval)
	defer message.Stop()
	churn := time.NewTicker(m.cfg.ChurnInterval)
	defer churn.Stop()

	logging.Info().
		Dur("presence_interval", m.cfg.PresenceInterval).
		Dur("message_interval", m.cfg.MessageInterval).
		Msg("mock provider started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "mock-provider").Msg("mock provider stopped")
			return ctx.Err()
		case <-presence.C:
			m.emit(ctx, m.presenceEvent())
		case <-message.C:
			m.emit(ctx, m.messageEvent())
		case <-churn.C:
			m.emit(ctx, m.churnEvent())
		}
	}
}

// emit delivers an event unless the limiter is saturated or ev is zero.
func (m *Mock) emit(ctx context.Context, ev Event) {
	if ev.Type == "" || !m.limiter.Allow() {
		return
	}
	metrics.ProviderEvents.WithLabelValues(string(ev.Type)).Inc()
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

// presenceEvent flips a random member's status.
func (m *Mock) presenceEvent() Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, idx, ok := m.randomMemberLocked()
	if !ok {
		return Event{}
	}
	status := mockStatuses[rand.IntN(len(mockStatuses))]
	m.members[roomID][idx].Status = status
	return Event{Type: EventPresence, Room: roomID, Member: m.members[roomID][idx]}
}

// messageEvent sends a chat line from a random member.
func (m *Mock) messageEvent() Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomID, idx, ok := m.randomMemberLocked()
	if !ok {
		return Event{}
	}
	return Event{
		Type:    EventMessage,
		Room:    roomID,
		Member:  m.members[roomID][idx],
		Text:    mockMessages[rand.IntN(len(mockMessages))],
		Channel: DefaultChannel,
	}
}

// churnEvent makes a member join, leave, or move rooms. Leavers are parked
// in a sideline pool and rejoin later so the simulation never drains.
func (m *Mock) churnEvent() Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rejoin a sidelined member half the time.
	if len(m.sidelined) > 0 && rand.IntN(2) == 0 {
		member := m.sidelined[0]
		m.sidelined = m.sidelined[1:]
		target := m.rooms[rand.IntN(len(m.rooms))].ID
		member.Status = room.StatusOnline
		m.members[target] = append(m.members[target], member)
		return Event{Type: EventMemberJoin, Room: target, Member: member}
	}

	roomID, idx, ok := m.randomMemberLocked()
	if !ok {
		return Event{}
	}
	member := m.members[roomID][idx]

	if rand.IntN(2) == 0 && len(m.rooms) > 1 {
		// Move to a different room.
		target := roomID
		for target == roomID {
			target = m.rooms[rand.IntN(len(m.rooms))].ID
		}
		m.members[roomID] = append(m.members[roomID][:idx], m.members[roomID][idx+1:]...)
		m.members[target] = append(m.members[target], member)
		return Event{Type: EventMemberMove, Room: target, PrevRoom: roomID, Member: member}
	}

	m.members[roomID] = append(m.members[roomID][:idx], m.members[roomID][idx+1:]...)
	m.sidelined = append(m.sidelined, member)
	return Event{Type: EventMemberLeave, Room: roomID, Member: member}
}

// randomMemberLocked picks a uniformly random member across all rooms.
// Caller holds m.mu.
func (m *Mock) randomMemberLocked() (roomID string, idx int, ok bool) {
	total := 0
	for _, members := range m.members {
		total += len(members)
	}
	if total == 0 {
		return "", 0, false
	}
	n := rand.IntN(total)
	for _, info := range m.rooms {
		members := m.members[info.ID]
		if n < len(members) {
			return info.ID, n, true
		}
		n -= len(members)
	}
	return "", 0, false
}
