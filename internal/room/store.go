// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package room

import (
	"errors"
	"sync"
)

// ErrNotFound reports an operation against a room id the store does not know.
var ErrNotFound = errors.New("room not found")

// state is a room plus its member set, in member insertion order.
type state struct {
	info    Info
	members map[string]Member
	order   []string
}

// Store is the single owner of room and member state.
//
// All mutations go through the store's mutex, and readers only ever receive
// copies, so a broadcast can never observe a room mid-mutation. Rooms are
// listed in insertion order, stable across calls, so clients can diff
// successive catalogues. Rooms are created and removed only by data-provider
// events, never by client requests.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*state
	order []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*state)}
}

// Reset replaces all state with the given rooms and their members.
// Used to load the initial catalogue from the data provider.
func (s *Store) Reset(rooms []Info, members map[string][]Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms = make(map[string]*state, len(rooms))
	s.order = s.order[:0]
	for _, info := range rooms {
		s.addRoomLocked(info)
		for _, m := range members[info.ID] {
			s.addMemberLocked(info.ID, m)
		}
	}
}

// List returns every room in insertion order.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rooms[id].info)
	}
	return out
}

// Catalogue returns the full room catalogue keyed by catalogue key, the
// shape the server-list frame carries.
func (s *Store) Catalogue() map[string]Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Info, len(s.rooms))
	for _, st := range s.rooms {
		out[st.info.Key] = st.info
	}
	return out
}

// Get returns the room with the given id.
func (s *Store) Get(id string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.rooms[id]
	if !ok {
		return Info{}, false
	}
	return st.info, true
}

// Members returns a snapshot of a room's members in insertion order.
func (s *Store) Members(id string) ([]Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.rooms[id]
	if !ok {
		return nil, false
	}
	out := make([]Member, 0, len(st.order))
	for _, uid := range st.order {
		out = append(out, st.members[uid])
	}
	return out, true
}

// AddRoom adds a room to the catalogue. Adding an id that already exists
// updates the catalogue entry without touching members.
func (s *Store) AddRoom(info Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.rooms[info.ID]; ok {
		st.info = info
		return
	}
	s.addRoomLocked(info)
}

// RemoveRoom removes a room and returns its final member snapshot.
func (s *Store) RemoveRoom(id string) ([]Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[id]
	if !ok {
		return nil, false
	}
	members := make([]Member, 0, len(st.order))
	for _, uid := range st.order {
		members = append(members, st.members[uid])
	}
	delete(s.rooms, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return members, true
}

// AddMember places a member in a room, removing them from any room they were
// in before so a user is never in two member sets at once. Returns the id of
// the room they left ("" if none) and whether they are new to the target
// room; re-adding an existing member refreshes their entry without changing
// insertion order.
func (s *Store) AddMember(roomID string, m Member) (prevRoom string, joined bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[roomID]
	if !ok {
		return "", false, ErrNotFound
	}

	if _, exists := st.members[m.UID]; exists {
		st.members[m.UID] = m
		return "", false, nil
	}

	for _, rid := range s.order {
		if rid == roomID {
			continue
		}
		if _, exists := s.rooms[rid].members[m.UID]; exists {
			s.removeMemberLocked(rid, m.UID)
			prevRoom = rid
			break
		}
	}

	s.addMemberLocked(roomID, m)
	return prevRoom, true, nil
}

// RemoveMember removes a member from a room, returning the removed entry.
func (s *Store) RemoveMember(roomID, uid string) (Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[roomID]
	if !ok {
		return Member{}, false
	}
	m, ok := st.members[uid]
	if !ok {
		return Member{}, false
	}
	s.removeMemberLocked(roomID, uid)
	return m, true
}

// SetStatus updates a member's presence, returning the updated entry.
func (s *Store) SetStatus(roomID, uid string, status Status) (Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[roomID]
	if !ok {
		return Member{}, false
	}
	m, ok := st.members[uid]
	if !ok {
		return Member{}, false
	}
	m.Status = status
	st.members[uid] = m
	return m, true
}

// MemberRoom returns the id of the room a user is currently in.
func (s *Store) MemberRoom(uid string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rid := range s.order {
		if _, ok := s.rooms[rid].members[uid]; ok {
			return rid, true
		}
	}
	return "", false
}

// Len returns the number of rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *Store) addRoomLocked(info Info) {
	s.rooms[info.ID] = &state{info: info, members: make(map[string]Member)}
	s.order = append(s.order, info.ID)
}

func (s *Store) addMemberLocked(roomID string, m Member) {
	st := s.rooms[roomID]
	if _, exists := st.members[m.UID]; !exists {
		st.order = append(st.order, m.UID)
	}
	st.members[m.UID] = m
}

func (s *Store) removeMemberLocked(roomID, uid string) {
	st := s.rooms[roomID]
	delete(st.members, uid)
	for i, id := range st.order {
		if id == uid {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
}
