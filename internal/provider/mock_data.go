// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package provider

import "github.com/NNTin/d-back/internal/room"

// DefaultChannel is the channel id attached to simulated chat messages.
const DefaultChannel = "527964146659229701"

// mockMessages is the rotation of simulated chat lines.
var mockMessages = []string{
	"hello",
	"how are you?",
	"this is a test message",
	"D-Zone rocks!",
	"what's up?",
}

// mockRooms returns the built-in room catalogue.
func mockRooms() []room.Info {
	return []room.Info{
		{Key: "232769614004748288", ID: "dworld", Name: "D-World", Default: true},
		{Key: "482241773318701056", ID: "docs", Name: "Docs (WIP)"},
		{Key: "123456789012345678", ID: "oauth", Name: "OAuth2 Protected Server", Passworded: true},
		{Key: "987654321098765432", ID: "repos", Name: "My Repos"},
	}
}

// mockMembers returns the built-in member sets keyed by room id.
func mockMembers() map[string][]room.Member {
	return map[string][]room.Member{
		"dworld": {
			{UID: "123456789012345001", Username: "vegeta897", Status: room.StatusOnline, RoleColor: "#ff6b6b"},
			{UID: "123456789012345002", Username: "Cog-Creators", Status: room.StatusIdle, RoleColor: "#4ecdc4"},
			{UID: "123456789012345003", Username: "d-zone-org", Status: room.StatusDND, RoleColor: "#45b7d1"},
			{UID: "123456789012345004", Username: "NNTin", Status: room.StatusOnline, RoleColor: "#96ceb4"},
		},
		"docs": {
			{UID: "223456789012345001", Username: "nntin.xyz/me", Status: room.StatusOnline, RoleColor: "#feca57"},
		},
		"oauth": {
			{UID: "323456789012345001", Username: "NNTin", Status: room.StatusOnline, RoleColor: "#ff9ff3"},
		},
		"repos": {
			{UID: "423456789012345001", Username: "me", Status: room.StatusOnline, RoleColor: "#54a0ff"},
			{UID: "423456789012345002", Username: "nntin.github.io", Status: room.StatusIdle, RoleColor: "#5f27cd"},
			{UID: "423456789012345003", Username: "d-zone", Status: room.StatusOnline, RoleColor: "#00d2d3"},
			{UID: "423456789012345004", Username: "d-back", Status: room.StatusDND, RoleColor: "#ff6348"},
			{UID: "423456789012345005", Username: "d-cogs", Status: room.StatusOnline, RoleColor: "#ff4757"},
			{UID: "423456789012345006", Username: "Cubify-Reddit", Status: room.StatusOffline, RoleColor: "#3742fa"},
			{UID: "423456789012345007", Username: "Dota-2-Emoticons", Status: room.StatusIdle, RoleColor: "#2ed573"},
			{UID: "423456789012345008", Username: "Dota-2-Reddit-Flair-Mosaic", Status: room.StatusOnline, RoleColor: "#ffa502"},
			{UID: "423456789012345009", Username: "Red-kun", Status: room.StatusDND, RoleColor: "#ff3838"},
			{UID: "423456789012345010", Username: "Reply-Dota-2-Reddit", Status: room.StatusOnline, RoleColor: "#ff9f43"},
			{UID: "423456789012345011", Username: "Reply-LoL-Reddit", Status: room.StatusIdle, RoleColor: "#0abde3"},
			{UID: "423456789012345012", Username: "crosku", Status: room.StatusOnline, RoleColor: "#006ba6"},
			{UID: "423456789012345013", Username: "dev-tracker-reddit", Status: room.StatusOffline, RoleColor: "#8e44ad"},
			{UID: "423456789012345014", Username: "discord-logo", Status: room.StatusOnline, RoleColor: "#7289da"},
			{UID: "423456789012345015", Username: "discord-twitter-bot", Status: room.StatusIdle, RoleColor: "#1da1f2"},
			{UID: "423456789012345016", Username: "discord-web-bridge", Status: room.StatusDND, RoleColor: "#2c2f33"},
			{UID: "423456789012345017", Username: "pasteindex", Status: room.StatusOnline, RoleColor: "#f39c12"},
			{UID: "423456789012345018", Username: "pasteview", Status: room.StatusIdle, RoleColor: "#e74c3c"},
			{UID: "423456789012345019", Username: "shell-kun", Status: room.StatusOnline, RoleColor: "#1abc9c"},
			{UID: "423456789012345020", Username: "tracker-reddit-discord", Status: room.StatusOffline, RoleColor: "#9b59b6"},
			{UID: "423456789012345021", Username: "twitter-backend", Status: room.StatusOnline, RoleColor: "#1da1f2"},
		},
	}
}
