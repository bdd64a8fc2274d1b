// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package services

import (
	"context"
)

// Runner matches a data provider's Run method.
type Runner interface {
	Run(ctx context.Context) error
}

// ProviderService wraps a data provider as a supervised service, so a
// panicking or failing provider is restarted without touching the hub or the
// HTTP listener.
type ProviderService struct {
	provider Runner
	name     string
}

// NewProviderService creates a provider service wrapper.
func NewProviderService(provider Runner, name string) *ProviderService {
	if name == "" {
		name = "data-provider"
	}
	return &ProviderService{provider: provider, name: name}
}

// Serve implements suture.Service.
func (s *ProviderService) Serve(ctx context.Context) error {
	return s.provider.Run(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *ProviderService) String() string {
	return s.name
}
