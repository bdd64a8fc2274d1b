// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package metrics provides Prometheus instrumentation for the relay:
// connected viewer counts, frame delivery, data-provider activity, and the
// circuit breaker guarding the live Discord API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedViewers tracks the current number of websocket connections.
	// Observability only; protocol decisions never read this.
	ConnectedViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dback_connected_viewers",
			Help: "Current number of connected websocket viewers",
		},
	)

	// FramesSent counts outbound frames by frame type.
	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dback_frames_sent_total",
			Help: "Total number of frames queued for delivery, by frame type",
		},
		[]string{"type"},
	)

	// FramesDropped counts frames that could not be delivered.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dback_frames_dropped_total",
			Help: "Total number of frames dropped, by reason",
		},
		[]string{"reason"}, // "slow_client", "closed"
	)

	// ProtocolErrors counts inbound frames rejected at the boundary.
	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dback_protocol_errors_total",
			Help: "Total number of rejected inbound frames, by error kind",
		},
		[]string{"kind"}, // "malformed", "unknown_type", "unknown_room", "unauthorized", "not_subscribed"
	)

	// ProviderEvents counts events received from the data provider.
	ProviderEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dback_provider_events_total",
			Help: "Total number of data-provider events, by event type",
		},
		[]string{"type"},
	)

	// CircuitBreakerState reflects the live-provider breaker state
	// (0 = closed, 1 = half-open, 2 = open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dback_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dback_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// CircuitBreakerRequests counts requests through the breaker by outcome.
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dback_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker, by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)
