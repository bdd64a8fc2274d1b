// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/NNTin/d-back/internal/logging"
	"github.com/NNTin/d-back/internal/metrics"
	"github.com/NNTin/d-back/internal/room"
)

// DiscordConfig configures the live-data adapter.
type DiscordConfig struct {
	// APIURL is the base URL of the Discord-style API.
	APIURL string

	// Token is the bot token sent on every request.
	Token string

	// PollInterval is how often the catalogue is refreshed. Default: 30s
	PollInterval time.Duration
}

// Discord polls a Discord-style widget API and diffs successive snapshots
// into relay events. All requests go through a circuit breaker so a dead
// upstream degrades to serving the last-known-good catalogue instead of
// hammering the API; existing viewer connections are unaffected by fetch
// failures.
type Discord struct {
	cfg    DiscordConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*snapshot]
	events chan Event

	mu   sync.RWMutex
	last *snapshot
}

// snapshot is one consistent view of the upstream catalogue.
type snapshot struct {
	rooms   []room.Info
	members map[string]map[string]room.Member
}

const breakerName = "discord-api"

// NewDiscord creates a live-data provider.
//
// Breaker policy: open after 5 consecutive fetch failures, retry one probe
// after 2 minutes. With the default 30s poll interval this stops hitting a
// dead upstream within ~2.5 minutes.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*snapshot](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("discord api circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Discord{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		cb:     cb,
		events: make(chan Event, 64),
	}
}

// ListRooms returns the last-known-good room catalogue.
func (d *Discord) ListRooms(_ context.Context) ([]room.Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return nil, nil
	}
	out := make([]room.Info, len(d.last.rooms))
	copy(out, d.last.rooms)
	return out, nil
}

// ListMembers returns the last-known-good members of a room.
func (d *Discord) ListMembers(_ context.Context, roomID string) ([]room.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return nil, nil
	}
	members, ok := d.last.members[roomID]
	if !ok {
		return nil, room.ErrNotFound
	}
	out := make([]room.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out, nil
}

// Events returns the change stream produced by polling.
func (d *Discord) Events() <-chan Event {
	return d.events
}

// Run polls the upstream until the context is canceled.
// Implements the suture.Service shape.
func (d *Discord) Run(ctx context.Context) error {
	logging.Info().
		Str("api_url", d.cfg.APIURL).
		Dur("poll_interval", d.cfg.PollInterval).
		Msg("discord provider started")

	d.poll(ctx)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "discord-provider").Msg("discord provider stopped")
			return ctx.Err()
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll fetches a snapshot through the breaker and emits the diff against the
// previous one. Failures keep the last-known-good snapshot serving.
func (d *Discord) poll(ctx context.Context) {
	cur, err := d.cb.Execute(func() (*snapshot, error) {
		return d.fetchSnapshot(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			logging.Debug().Msg("discord poll skipped, circuit breaker open")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
			logging.Warn().Err(err).Msg("discord catalogue fetch failed, serving last-known-good")
		}
		return
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	d.mu.Lock()
	prev := d.last
	d.last = cur
	d.mu.Unlock()

	for _, ev := range diffSnapshots(prev, cur) {
		metrics.ProviderEvents.WithLabelValues(string(ev.Type)).Inc()
		select {
		case d.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

type guildResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type widgetResponse struct {
	Members []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Status   string `json:"status"`
	} `json:"members"`
}

// fetchSnapshot pulls the guild list and each guild's widget members.
func (d *Discord) fetchSnapshot(ctx context.Context) (*snapshot, error) {
	var guilds []guildResponse
	if err := d.getJSON(ctx, d.cfg.APIURL+"/guilds", &guilds); err != nil {
		return nil, fmt.Errorf("fetch guilds: %w", err)
	}

	snap := &snapshot{members: make(map[string]map[string]room.Member, len(guilds))}
	for _, g := range guilds {
		var widget widgetResponse
		if err := d.getJSON(ctx, d.cfg.APIURL+"/guilds/"+g.ID+"/widget.json", &widget); err != nil {
			return nil, fmt.Errorf("fetch widget for %s: %w", g.ID, err)
		}

		snap.rooms = append(snap.rooms, room.Info{Key: g.ID, ID: g.ID, Name: g.Name})
		members := make(map[string]room.Member, len(widget.Members))
		for _, m := range widget.Members {
			status := room.Status(m.Status)
			if !status.Valid() {
				status = room.StatusOnline
			}
			members[m.ID] = room.Member{UID: m.ID, Username: m.Username, Status: status}
		}
		snap.members[g.ID] = members
	}
	return snap, nil
}

func (d *Discord) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bot "+d.cfg.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// diffSnapshots translates the delta between two snapshots into events.
// A uid that left one room and appeared in another within the same poll is
// collapsed into a single move event. The first snapshot diffs against an
// empty one, so every room arrives as a room-add.
func diffSnapshots(prev, cur *snapshot) []Event {
	if prev == nil {
		prev = &snapshot{}
	}

	var events []Event
	prevRooms := make(map[string]room.Info, len(prev.rooms))
	for _, info := range prev.rooms {
		prevRooms[info.ID] = info
	}
	curRooms := make(map[string]room.Info, len(cur.rooms))
	for _, info := range cur.rooms {
		curRooms[info.ID] = info
	}

	for _, info := range cur.rooms {
		if _, ok := prevRooms[info.ID]; !ok {
			events = append(events, Event{Type: EventRoomAdd, Room: info.ID, Info: info})
		}
	}
	for _, info := range prev.rooms {
		if _, ok := curRooms[info.ID]; !ok {
			events = append(events, Event{Type: EventRoomRemove, Room: info.ID})
		}
	}

	type departure struct {
		roomID string
		member room.Member
	}
	left := make(map[string]departure)

	for rid, prevMembers := range prev.members {
		if _, ok := curRooms[rid]; !ok {
			continue
		}
		for uid, m := range prevMembers {
			if _, ok := cur.members[rid][uid]; !ok {
				left[uid] = departure{roomID: rid, member: m}
			}
		}
	}

	for rid, curMembers := range cur.members {
		_, roomExisted := prevRooms[rid]
		prevMembers := prev.members[rid]
		for uid, m := range curMembers {
			old, existed := prevMembers[uid]
			switch {
			case existed:
				if old.Status != m.Status {
					events = append(events, Event{Type: EventPresence, Room: rid, Member: m})
				}
			case !roomExisted:
				// Members of a brand-new room ride along with its room-add;
				// suppress the matching departure if they came from elsewhere.
				delete(left, uid)
			case left[uid].roomID != "":
				events = append(events, Event{Type: EventMemberMove, Room: rid, PrevRoom: left[uid].roomID, Member: m})
				delete(left, uid)
			default:
				events = append(events, Event{Type: EventMemberJoin, Room: rid, Member: m})
			}
		}
	}

	for _, dep := range left {
		events = append(events, Event{Type: EventMemberLeave, Room: dep.roomID, Member: dep.member})
	}
	return events
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
