// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package room

import (
	"fmt"
	"sync"
	"testing"
)

func testStore() *Store {
	s := NewStore()
	s.Reset(
		[]Info{
			{Key: "232769614004748288", ID: "dworld", Name: "D-World", Default: true},
			{Key: "482241773318701056", ID: "docs", Name: "Docs (WIP)"},
			{Key: "987654321098765432", ID: "repos", Name: "My Repos"},
		},
		map[string][]Member{
			"dworld": {
				{UID: "1", Username: "vegeta897", Status: StatusOnline},
				{UID: "2", Username: "NNTin", Status: StatusIdle},
			},
			"docs": {
				{UID: "3", Username: "nntin.xyz/me", Status: StatusOnline},
			},
		},
	)
	return s
}

func TestListInsertionOrderStable(t *testing.T) {
	s := testStore()

	first := s.List()
	second := s.List()

	if len(first) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("room order changed between calls: %v vs %v", first, second)
		}
	}
	wantOrder := []string{"dworld", "docs", "repos"}
	for i, id := range wantOrder {
		if first[i].ID != id {
			t.Errorf("expected room %d to be %s, got %s", i, id, first[i].ID)
		}
	}
}

func TestCatalogueKeyedBySnowflake(t *testing.T) {
	s := testStore()

	cat := s.Catalogue()
	info, ok := cat["232769614004748288"]
	if !ok {
		t.Fatal("expected dworld under its catalogue key")
	}
	if info.ID != "dworld" || info.Name != "D-World" {
		t.Errorf("unexpected catalogue entry: %+v", info)
	}
}

func TestGetUnknownRoom(t *testing.T) {
	s := testStore()

	if _, ok := s.Get("does-not-exist"); ok {
		t.Error("Get should report unknown room")
	}
	if _, ok := s.Members("does-not-exist"); ok {
		t.Error("Members should report unknown room")
	}
}

func TestAddMemberSingleRoomInvariant(t *testing.T) {
	s := testStore()

	// Moving uid 1 from dworld to docs must remove it from dworld.
	prev, joined, err := s.AddMember("docs", Member{UID: "1", Username: "vegeta897", Status: StatusOnline})
	if err != nil {
		t.Fatalf("AddMember returned error: %v", err)
	}
	if !joined {
		t.Error("expected member to be new to docs")
	}
	if prev != "dworld" {
		t.Errorf("expected prev room dworld, got %q", prev)
	}

	members, _ := s.Members("dworld")
	for _, m := range members {
		if m.UID == "1" {
			t.Error("member still present in old room after move")
		}
	}
	if rid, _ := s.MemberRoom("1"); rid != "docs" {
		t.Errorf("expected member in docs, got %q", rid)
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	s := testStore()

	prev, joined, err := s.AddMember("dworld", Member{UID: "1", Username: "vegeta897", Status: StatusDND})
	if err != nil {
		t.Fatalf("AddMember returned error: %v", err)
	}
	if joined || prev != "" {
		t.Errorf("re-adding an existing member should be an update, got joined=%v prev=%q", joined, prev)
	}

	members, _ := s.Members("dworld")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	// Insertion order preserved, status refreshed.
	if members[0].UID != "1" || members[0].Status != StatusDND {
		t.Errorf("unexpected first member: %+v", members[0])
	}
}

func TestAddMemberUnknownRoom(t *testing.T) {
	s := testStore()

	if _, _, err := s.AddMember("nope", Member{UID: "9"}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	s := testStore()

	m, ok := s.RemoveMember("dworld", "2")
	if !ok {
		t.Fatal("expected member to be removed")
	}
	if m.Username != "NNTin" {
		t.Errorf("unexpected removed member: %+v", m)
	}
	if _, ok := s.RemoveMember("dworld", "2"); ok {
		t.Error("second removal should report missing member")
	}
}

func TestSetStatus(t *testing.T) {
	s := testStore()

	m, ok := s.SetStatus("dworld", "1", StatusOffline)
	if !ok {
		t.Fatal("expected status update to succeed")
	}
	if m.Status != StatusOffline {
		t.Errorf("expected offline, got %s", m.Status)
	}

	if _, ok := s.SetStatus("dworld", "404", StatusIdle); ok {
		t.Error("status update for unknown member should fail")
	}
}

func TestRemoveRoom(t *testing.T) {
	s := testStore()

	members, ok := s.RemoveRoom("dworld")
	if !ok {
		t.Fatal("expected room removal to succeed")
	}
	if len(members) != 2 {
		t.Errorf("expected final member snapshot of 2, got %d", len(members))
	}
	if _, ok := s.Get("dworld"); ok {
		t.Error("room still present after removal")
	}

	list := s.List()
	if len(list) != 2 || list[0].ID != "docs" {
		t.Errorf("unexpected room order after removal: %v", list)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusOnline, StatusIdle, StatusDND, StatusOffline} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("away").Valid() {
		t.Error("away should not be valid")
	}
}

func TestConcurrentMutationAndSnapshot(t *testing.T) {
	s := testStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			uid := fmt.Sprintf("w-%d", n)
			for j := 0; j < 100; j++ {
				_, _, _ = s.AddMember("dworld", Member{UID: uid, Username: uid, Status: StatusOnline})
				s.RemoveMember("dworld", uid)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				members, ok := s.Members("dworld")
				if !ok {
					t.Error("room disappeared during reads")
					return
				}
				// A snapshot must never contain a half-written member.
				for _, m := range members {
					if m.UID == "" || m.Username == "" {
						t.Errorf("observed partial member: %+v", m)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
