// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package services wraps the relay's long-running components as suture
// services.
package services

import (
	"context"
)

// ContextHub matches *relay.Hub's RunWithContext method, avoiding a direct
// dependency on the relay package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the relay hub as a supervised service. RunWithContext
// already implements the suture.Service pattern; this wrapper only adds a
// name for logging.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub, name: "relay-hub"}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *HubService) String() string {
	return s.name
}
