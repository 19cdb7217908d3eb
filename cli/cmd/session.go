package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpchat/cli/internal/chat"
	"github.com/BioHazard786/Warpchat/cli/internal/config"
	"github.com/BioHazard786/Warpchat/cli/internal/signaling"
	"github.com/BioHazard786/Warpchat/cli/internal/webrtc"
)

// LoadConfig resolves flags and environment into a validated config.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:     flagDomain,
		Insecure:   flagInsecure,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		Username:   flagUsername,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// StartNode builds a chat node from cfg and connects it. Logging must be
// initialised first so the peer connection stack picks up the same sink.
func StartNode(ctx context.Context, cfg *config.Config) (*chat.Node, error) {
	logger := slog.Default().With("component", "chat")
	client := signaling.NewClient(cfg.WebSocketURL, cfg.PeerID, logger)
	factory := webrtc.NewFactory(cfg, webrtc.WithLogger(logger))

	node := chat.New(cfg, client, factory, logger)
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Domain, err)
	}
	return node, nil
}
