// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/NNTin/d-back/internal/auth"
	"github.com/NNTin/d-back/internal/protocol"
	"github.com/NNTin/d-back/internal/provider"
	"github.com/NNTin/d-back/internal/room"
)

// fakeProvider serves a fixed catalogue and lets tests inject events.
type fakeProvider struct {
	rooms   []room.Info
	members map[string][]room.Member
	events  chan provider.Event
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		rooms: []room.Info{
			{Key: "232769614004748288", ID: "dworld", Name: "D-World", Default: true},
			{Key: "482241773318701056", ID: "docs", Name: "Docs (WIP)"},
			{Key: "123456789012345678", ID: "oauth", Name: "OAuth2 Protected Server", Passworded: true},
		},
		members: map[string][]room.Member{
			"dworld": {
				{UID: "m1", Username: "vegeta897", Status: room.StatusOnline},
			},
		},
		events: make(chan provider.Event, 16),
	}
}

func (f *fakeProvider) ListRooms(context.Context) ([]room.Info, error) {
	return f.rooms, nil
}

func (f *fakeProvider) ListMembers(_ context.Context, roomID string) ([]room.Member, error) {
	return f.members[roomID], nil
}

func (f *fakeProvider) Events() <-chan provider.Event { return f.events }

func (f *fakeProvider) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// setupHub starts a hub over the fake catalogue and tears it down with the test.
func setupHub(t *testing.T) (*Hub, *fakeProvider, chan error) {
	t.Helper()
	fp := newFakeProvider()
	h := NewHub(room.NewStore(), fp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()
	t.Cleanup(cancel)
	return h, fp, done
}

var testClientSeq int

// createTestClient registers a connectionless client and consumes its
// admission server-list frame.
func createTestClient(t *testing.T, h *Hub, anonymous bool) *Client {
	t.Helper()
	testClientSeq++
	c := NewClient(h, nil, auth.Identity{
		UID:       fmt.Sprintf("viewer-%d", testClientSeq),
		Username:  fmt.Sprintf("viewer-%d", testClientSeq),
		Anonymous: anonymous,
	})
	h.Register <- c

	f := recvFrame(t, c)
	if f.Type != protocol.TypeServerList {
		t.Fatalf("first frame must be server-list, got %q", f.Type)
	}
	return c
}

func recvFrame(t *testing.T, c *Client) protocol.Frame {
	t.Helper()
	select {
	case f, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while expecting a frame")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.Frame{}
	}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case f := <-c.send:
		t.Fatalf("unexpected frame %q", f.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func sendRaw(h *Hub, c *Client, raw string) {
	h.inbound <- inboundFrame{client: c, raw: []byte(raw)}
}

func connect(t *testing.T, h *Hub, c *Client, roomID string) protocol.Frame {
	t.Helper()
	sendRaw(h, c, fmt.Sprintf(`{"type":"connect","data":{"server":%q}}`, roomID))
	return recvFrame(t, c)
}

func TestAdmissionServerList(t *testing.T) {
	h, _, _ := setupHub(t)

	c := NewClient(h, nil, auth.Identity{UID: "v0", Username: "v0", Anonymous: true})
	h.Register <- c

	f := recvFrame(t, c)
	if f.Type != protocol.TypeServerList {
		t.Fatalf("expected server-list, got %q", f.Type)
	}
	catalogue, ok := f.Data.(map[string]room.Info)
	if !ok {
		t.Fatalf("unexpected server-list payload %T", f.Data)
	}
	if len(catalogue) != 3 {
		t.Errorf("expected 3 rooms, got %d", len(catalogue))
	}
	if info := catalogue["232769614004748288"]; info.ID != "dworld" || !info.Default {
		t.Errorf("unexpected default room entry: %+v", info)
	}
}

func TestConnectJoinsRoom(t *testing.T) {
	h, _, _ := setupHub(t)
	c := createTestClient(t, h, true)

	f := connect(t, h, c, "dworld")
	if f.Type != protocol.TypeServerJoin {
		t.Fatalf("expected server-join, got %q (message %q)", f.Type, f.Message)
	}
	payload, ok := f.Data.(joinPayload)
	if !ok {
		t.Fatalf("unexpected server-join payload %T", f.Data)
	}
	if payload.Server.ID != "dworld" {
		t.Errorf("joined wrong room: %+v", payload.Server)
	}
	// Snapshot holds the seeded member plus the viewer itself.
	if len(payload.Users) != 2 {
		t.Fatalf("expected 2 users in snapshot, got %d", len(payload.Users))
	}
	if payload.Users[1].UID != c.viewer.UID {
		t.Errorf("viewer missing from its own snapshot: %+v", payload.Users)
	}
}

func TestConnectFansOutUserJoin(t *testing.T) {
	h, _, _ := setupHub(t)
	c1 := createTestClient(t, h, true)
	connect(t, h, c1, "dworld")

	c2 := createTestClient(t, h, true)
	connect(t, h, c2, "dworld")

	f := recvFrame(t, c1)
	if f.Type != protocol.TypeUserJoin || f.Server != "dworld" {
		t.Fatalf("expected user-join for dworld, got %+v", f)
	}
	m, ok := f.Data.(room.Member)
	if !ok || m.UID != c2.viewer.UID {
		t.Errorf("user-join should carry the joining viewer, got %+v", f.Data)
	}
}

func TestConnectUnknownRoom(t *testing.T) {
	h, _, _ := setupHub(t)
	c := createTestClient(t, h, true)

	f := connect(t, h, c, "atlantis")
	if f.Type != protocol.TypeError {
		t.Fatalf("expected error frame, got %q", f.Type)
	}
	if f.Message == "" || f.Data != nil {
		t.Errorf("error frame must carry a top-level message and no data: %+v", f)
	}

	// State unchanged: chatting still reports no subscription.
	sendRaw(h, c, `{"type":"chat","data":{"message":"hi"}}`)
	if f := recvFrame(t, c); f.Type != protocol.TypeError {
		t.Errorf("expected error for unsubscribed chat, got %q", f.Type)
	}
}

func TestConnectDefaultAlias(t *testing.T) {
	h, _, _ := setupHub(t)
	c := createTestClient(t, h, true)

	f := connect(t, h, c, "default")
	if f.Type != protocol.TypeServerJoin {
		t.Fatalf("expected server-join, got %q", f.Type)
	}
	if payload := f.Data.(joinPayload); payload.Server.ID != "dworld" {
		t.Errorf("default alias should resolve to dworld, got %+v", payload.Server)
	}
}

func TestConnectPasswordedRoom(t *testing.T) {
	h, _, _ := setupHub(t)

	anon := createTestClient(t, h, true)
	if f := connect(t, h, anon, "oauth"); f.Type != protocol.TypeError {
		t.Errorf("anonymous viewer must not enter passworded room, got %q", f.Type)
	}

	authed := createTestClient(t, h, false)
	if f := connect(t, h, authed, "oauth"); f.Type != protocol.TypeServerJoin {
		t.Errorf("authenticated viewer should enter passworded room, got %q", f.Type)
	}
}

func TestReconnectSameRoomIdempotent(t *testing.T) {
	h, _, _ := setupHub(t)
	c1 := createTestClient(t, h, true)
	connect(t, h, c1, "dworld")
	c2 := createTestClient(t, h, true)
	connect(t, h, c2, "dworld")
	recvFrame(t, c1) // user-join for c2

	f := connect(t, h, c2, "dworld")
	if f.Type != protocol.TypeServerJoin {
		t.Fatalf("re-connect should yield a fresh server-join, got %q", f.Type)
	}
	payload := f.Data.(joinPayload)
	seen := 0
	for _, u := range payload.Users {
		if u.UID == c2.viewer.UID {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("viewer appears %d times in snapshot", seen)
	}
	// No duplicate membership fan-out.
	expectNoFrame(t, c1)
}

func TestSwitchRooms(t *testing.T) {
	h, _, _ := setupHub(t)
	c1 := createTestClient(t, h, true)
	connect(t, h, c1, "dworld")
	c2 := createTestClient(t, h, true)
	connect(t, h, c2, "dworld")
	recvFrame(t, c1) // user-join for c2

	if f := connect(t, h, c2, "docs"); f.Type != protocol.TypeServerJoin {
		t.Fatalf("expected server-join for docs, got %q", f.Type)
	}

	f := recvFrame(t, c1)
	if f.Type != protocol.TypeUserLeave || f.Server != "dworld" {
		t.Fatalf("old room should see user-leave, got %+v", f)
	}
	if p := f.Data.(leavePayload); p.UID != c2.viewer.UID {
		t.Errorf("user-leave should carry the leaving viewer, got %+v", p)
	}
}

func TestChatRelayedToRoom(t *testing.T) {
	h, _, _ := setupHub(t)
	c1 := createTestClient(t, h, true)
	connect(t, h, c1, "dworld")
	c2 := createTestClient(t, h, true)
	connect(t, h, c2, "dworld")
	recvFrame(t, c1) // user-join for c2
	outsider := createTestClient(t, h, true)
	connect(t, h, outsider, "docs")

	sendRaw(h, c1, `{"type":"chat","data":{"message":"hello room"}}`)

	for _, c := range []*Client{c1, c2} {
		f := recvFrame(t, c)
		if f.Type != protocol.TypeMessage || f.Server != "dworld" {
			t.Fatalf("expected message frame for dworld, got %+v", f)
		}
		p := f.Data.(messagePayload)
		if p.UID != c1.viewer.UID || p.Message != "hello room" {
			t.Errorf("unexpected message payload: %+v", p)
		}
	}
	expectNoFrame(t, outsider)
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	h, _, _ := setupHub(t)
	c := createTestClient(t, h, true)

	cases := []string{
		`not json`,
		`{"data":{"server":"dworld"}}`,
		`{"type":"connect"}`,
		`{"type":"teleport","data":{}}`,
	}
	for _, raw := range cases {
		sendRaw(h, c, raw)
		f := recvFrame(t, c)
		if f.Type != protocol.TypeError || f.Message == "" {
			t.Errorf("input %q: expected error frame with message, got %+v", raw, f)
		}
	}

	if h.ClientCount() != 1 {
		t.Errorf("bad frames must not disturb the registry, count=%d", h.ClientCount())
	}
}

func TestUnregisterNotifiesRoom(t *testing.T) {
	h, _, _ := setupHub(t)
	c1 := createTestClient(t, h, true)
	connect(t, h, c1, "dworld")
	c2 := createTestClient(t, h, true)
	connect(t, h, c2, "dworld")
	recvFrame(t, c1) // user-join for c2

	h.Unregister <- c2

	f := recvFrame(t, c1)
	if f.Type != protocol.TypeUserLeave || f.Server != "dworld" {
		t.Fatalf("expected user-leave after disconnect, got %+v", f)
	}
	if p := f.Data.(leavePayload); p.UID != c2.viewer.UID {
		t.Errorf("user-leave should carry the disconnected viewer, got %+v", p)
	}
}

func TestProviderPresenceEvent(t *testing.T) {
	h, fp, _ := setupHub(t)
	c := createTestClient(t, h, true)
	connect(t, h, c, "dworld")
	outsider := createTestClient(t, h, true)
	connect(t, h, outsider, "docs")

	fp.events <- provider.Event{
		Type:   provider.EventPresence,
		Room:   "dworld",
		Member: room.Member{UID: "m1", Status: room.StatusDND},
	}

	f := recvFrame(t, c)
	if f.Type != protocol.TypePresence || f.Server != "dworld" {
		t.Fatalf("expected presence frame, got %+v", f)
	}
	if p := f.Data.(presencePayload); p.UID != "m1" || p.Status != room.StatusDND {
		t.Errorf("unexpected presence payload: %+v", p)
	}
	expectNoFrame(t, outsider)
}

func TestProviderMessageEvent(t *testing.T) {
	h, fp, _ := setupHub(t)
	c := createTestClient(t, h, true)
	connect(t, h, c, "dworld")

	fp.events <- provider.Event{
		Type:    provider.EventMessage,
		Room:    "dworld",
		Member:  room.Member{UID: "m1"},
		Text:    "beep",
		Channel: provider.DefaultChannel,
	}

	f := recvFrame(t, c)
	if f.Type != protocol.TypeMessage {
		t.Fatalf("expected message frame, got %q", f.Type)
	}
	p := f.Data.(messagePayload)
	if p.Message != "beep" || p.Channel != provider.DefaultChannel {
		t.Errorf("unexpected message payload: %+v", p)
	}
}

func TestProviderMemberMove(t *testing.T) {
	h, fp, _ := setupHub(t)
	cA := createTestClient(t, h, true)
	connect(t, h, cA, "dworld")
	cB := createTestClient(t, h, true)
	connect(t, h, cB, "docs")

	fp.events <- provider.Event{
		Type:     provider.EventMemberMove,
		Room:     "docs",
		PrevRoom: "dworld",
		Member:   room.Member{UID: "m1", Username: "vegeta897", Status: room.StatusOnline},
	}

	if f := recvFrame(t, cA); f.Type != protocol.TypeUserLeave || f.Server != "dworld" {
		t.Errorf("old room should see user-leave, got %+v", f)
	}
	if f := recvFrame(t, cB); f.Type != protocol.TypeUserJoin || f.Server != "docs" {
		t.Errorf("new room should see user-join, got %+v", f)
	}
}

func TestProviderRoomRemove(t *testing.T) {
	h, fp, _ := setupHub(t)
	c := createTestClient(t, h, true)
	connect(t, h, c, "docs")

	fp.events <- provider.Event{Type: provider.EventRoomRemove, Room: "docs"}

	f := recvFrame(t, c)
	if f.Type != protocol.TypeUserLeave || f.Server != "docs" {
		t.Fatalf("subscriber should be forced out with user-leave, got %+v", f)
	}
	f = recvFrame(t, c)
	if f.Type != protocol.TypeServerList {
		t.Fatalf("catalogue refresh should follow, got %q", f.Type)
	}
	if _, ok := f.Data.(map[string]room.Info)["482241773318701056"]; ok {
		t.Error("removed room still present in catalogue")
	}

	// The forced unsubscribe is real: chat now fails.
	sendRaw(h, c, `{"type":"chat","data":{"message":"hi"}}`)
	if f := recvFrame(t, c); f.Type != protocol.TypeError {
		t.Errorf("expected error after forced unsubscribe, got %q", f.Type)
	}
}

func TestProviderRoomAdd(t *testing.T) {
	h, fp, _ := setupHub(t)
	c := createTestClient(t, h, true)

	fp.members["arcade"] = []room.Member{{UID: "m9", Username: "pac", Status: room.StatusOnline}}
	fp.events <- provider.Event{
		Type: provider.EventRoomAdd,
		Room: "arcade",
		Info: room.Info{Key: "555", ID: "arcade", Name: "Arcade"},
	}

	f := recvFrame(t, c)
	if f.Type != protocol.TypeServerList {
		t.Fatalf("expected catalogue refresh, got %q", f.Type)
	}
	if _, ok := f.Data.(map[string]room.Info)["555"]; !ok {
		t.Error("new room missing from catalogue")
	}

	join := connect(t, h, c, "arcade")
	if join.Type != protocol.TypeServerJoin {
		t.Fatalf("expected to join new room, got %q", join.Type)
	}
	users := join.Data.(joinPayload).Users
	if len(users) != 2 || users[0].UID != "m9" {
		t.Errorf("new room should carry its provider members, got %+v", users)
	}
}

func TestProviderRoomAddMovesMember(t *testing.T) {
	h, fp, _ := setupHub(t)
	c := createTestClient(t, h, true)
	connect(t, h, c, "dworld")

	// The new room's seed roster pulls m1 out of dworld.
	fp.members["arcade"] = []room.Member{{UID: "m1", Username: "vegeta897", Status: room.StatusOnline}}
	fp.events <- provider.Event{
		Type: provider.EventRoomAdd,
		Room: "arcade",
		Info: room.Info{Key: "555", ID: "arcade", Name: "Arcade"},
	}

	f := recvFrame(t, c)
	if f.Type != protocol.TypeUserLeave || f.Server != "dworld" {
		t.Fatalf("old room should see user-leave for the moved member, got %+v", f)
	}
	if p := f.Data.(leavePayload); p.UID != "m1" {
		t.Errorf("user-leave should name the moved member, got %+v", p)
	}
	if f := recvFrame(t, c); f.Type != protocol.TypeServerList {
		t.Errorf("catalogue refresh should follow the fan-out, got %q", f.Type)
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, _, _ := setupHub(t)
	c1 := createTestClient(t, h, true)
	connect(t, h, c1, "dworld")
	c2 := createTestClient(t, h, true)
	connect(t, h, c2, "dworld")
	recvFrame(t, c1) // user-join for c2

	// Saturate c1's send buffer so the next broadcast cannot be queued.
	filler := protocol.Frame{Type: protocol.TypeMessage}
fill:
	for {
		select {
		case c1.send <- filler:
		default:
			break fill
		}
	}

	sendRaw(h, c2, `{"type":"chat","data":{"message":"still here"}}`)

	// c2 keeps working: the chat echo arrives, then the drop fan-out.
	f := recvFrame(t, c2)
	if f.Type != protocol.TypeMessage {
		t.Fatalf("expected message frame, got %q", f.Type)
	}
	f = recvFrame(t, c2)
	if f.Type != protocol.TypeUserLeave {
		t.Fatalf("expected user-leave for dropped client, got %q", f.Type)
	}
	if p := f.Data.(leavePayload); p.UID != c1.viewer.UID {
		t.Errorf("user-leave should name the dropped viewer, got %+v", p)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("slow client not dropped, count=%d", h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	fp := newFakeProvider()
	h := NewHub(room.NewStore(), fp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()

	c := createTestClient(t, h, true)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	// Drain until the hub's close lands.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("client send channel not closed on shutdown")
		}
	}
}

// A read pump whose socket dies after shutdown must not hang handing its
// connection back to a run loop that no longer exists.
func TestShutdownUnblocksDisconnects(t *testing.T) {
	fp := newFakeProvider()
	h := NewHub(room.NewStore(), fp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()

	c := createTestClient(t, h, true)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	released := make(chan struct{})
	go func() {
		h.notifyDisconnect(c)
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect notification blocked after shutdown")
	}
}
