// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Command server runs the d-back relay: a WebSocket fan-out of room
// presence and chat over a supervised service tree.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NNTin/d-back/internal/api"
	"github.com/NNTin/d-back/internal/auth"
	"github.com/NNTin/d-back/internal/config"
	"github.com/NNTin/d-back/internal/logging"
	"github.com/NNTin/d-back/internal/provider"
	"github.com/NNTin/d-back/internal/relay"
	"github.com/NNTin/d-back/internal/room"
	"github.com/NNTin/d-back/internal/supervisor"
	"github.com/NNTin/d-back/internal/supervisor/services"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "0.0.14"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("addr", cfg.Addr()).
		Str("provider", cfg.Provider.Source).
		Str("auth_mode", cfg.Auth.Mode).
		Msg("Starting d-back")

	prov, providerName := buildProvider(cfg)

	validator := auth.NewValidator(auth.Config{
		Mode:     auth.Mode(cfg.Auth.Mode),
		APIURL:   cfg.Auth.APIURL,
		ClientID: cfg.Auth.ClientID,
	})

	hub := relay.NewHub(room.NewStore(), prov)

	handler := api.NewHandler(cfg, hub, validator, version)
	router := api.NewRouter(cfg, handler)

	// Bind before the tree starts so a port-in-use error is fatal here
	// instead of looping through supervisor restarts.
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logging.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("Failed to bind listener")
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddMessagingService(services.NewProviderService(prov, providerName))
	tree.AddAPIService(services.NewHTTPServerService(srv, ln, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	logging.Info().Str("addr", ln.Addr().String()).Msg("Serving")

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	}

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil {
		for _, unstopped := range report {
			logging.Warn().Str("service", unstopped.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// buildProvider selects the data provider from configuration.
func buildProvider(cfg *config.Config) (provider.Provider, string) {
	switch cfg.Provider.Source {
	case "discord":
		return provider.NewDiscord(provider.DiscordConfig{
			APIURL:       cfg.Discord.APIURL,
			Token:        cfg.Discord.Token,
			PollInterval: cfg.Discord.PollInterval,
		}), "discord-provider"
	default:
		return provider.NewMock(provider.MockConfig{
			PresenceInterval: cfg.Provider.PresenceInterval,
			MessageInterval:  cfg.Provider.MessageInterval,
			ChurnInterval:    cfg.Provider.ChurnInterval,
		}), "mock-provider"
	}
}
