// Package server implements the gocollab session server: websocket
// transport, the session coordinator and its media workers.
package server

import (
	"context"
	"fmt"

	"github.com/NicolasHaas/gocollab/pkg/auth"
	"github.com/NicolasHaas/gocollab/pkg/ban"
	"github.com/NicolasHaas/gocollab/pkg/store"
	"github.com/NicolasHaas/gocollab/pkg/vm"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store   store.Store
	Machine vm.Machine
}

// Server is the main gocollab server.
type Server struct {
	cfg     Config
	store   store.Store
	machine vm.Machine
	metrics *Metrics

	coord  *Coordinator
	ws     *WSHandler
	worker *ScreenWorker

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil || deps.Machine == nil {
		return nil, fmt.Errorf("server: missing store or machine dependency")
	}
	verifier, err := newVerifier(cfg.Auth, deps.Store)
	if err != nil {
		return nil, err
	}
	geo, err := newCIDRGeo(cfg.Flags)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	bans := ban.NewManager(deps.Store, ban.WithCommand(cfg.Bans.Command))
	coordDeps := CoordinatorDeps{
		Machine:  deps.Machine,
		Verifier: verifier,
		Bans:     bans,
		Archive:  deps.Store,
		Metrics:  metrics,
	}
	if geo != nil {
		coordDeps.Geo = geo
	}
	coord := NewCoordinator(cfg, coordDeps)

	var pipeline *AudioPipeline
	if cfg.Audio.Enabled {
		pipeline, err = NewAudioPipeline(coord, cfg.Audio)
		if err != nil {
			return nil, fmt.Errorf("server: audio: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		store:   deps.Store,
		machine: deps.Machine,
		metrics: metrics,
		coord:   coord,
		ws:      NewWSHandler(coord, bans, metrics, cfg.HTTP),
		worker:  NewScreenWorker(coord, deps.Machine, pipeline, cfg.Node),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// newVerifier builds the login verifier for the configured auth mode. It
// returns nil when login is disabled.
func newVerifier(cfg AuthConfig, st store.Store) (auth.Verifier, error) {
	switch cfg.Mode {
	case AuthNone:
		return nil, nil
	case AuthTokens:
		return auth.Tokens{Store: st}, nil
	case AuthJWT:
		return auth.JWT{Key: []byte(cfg.JWTKey), Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}, nil
	case AuthRemote:
		return auth.Remote{URL: cfg.RemoteURL, Secret: cfg.RemoteSecret}, nil
	default:
		return nil, fmt.Errorf("server: unknown auth mode %q", cfg.Mode)
	}
}
