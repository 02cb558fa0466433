package main

import (
	"fmt"
	"time"

	"github.com/JaimeStill/arbiter/internal/config"
	"github.com/JaimeStill/arbiter/internal/documents"
	"github.com/JaimeStill/arbiter/internal/infrastructure"
	"github.com/JaimeStill/arbiter/internal/notifications"
	"github.com/JaimeStill/arbiter/internal/templates"
	"github.com/JaimeStill/arbiter/internal/workflows"
)

// Server composes infrastructure, domain systems, the workflow engine, and
// the background sweeper into one running service.
type Server struct {
	infra   *infrastructure.Infrastructure
	engine  *workflows.Engine
	sweeper *workflows.Sweeper
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	registry := templates.NewRegistry()
	if err := templates.RegisterDefaults(registry); err != nil {
		return nil, fmt.Errorf("register default templates: %w", err)
	}

	docs := documents.New(
		infra.Database.Connection(),
		infra.Logger,
		cfg.Engine.Pagination,
	)

	var store workflows.Store
	switch cfg.Engine.Store {
	case config.StorePostgres:
		store = workflows.NewPgStore(
			infra.Database.Connection(),
			infra.Logger,
			cfg.Engine.Pagination,
		)
	default:
		store = workflows.NewMemoryStore(cfg.Engine.Pagination)
	}

	engine := workflows.NewEngine(
		registry,
		store,
		docs,
		notifications.NewEmitter(infra.Logger),
		infra.Logger,
		cfg.Engine.Options(),
	)

	sweeper := workflows.NewSweeper(
		engine,
		cfg.Engine.SweepIntervalDuration(),
		infra.Logger,
	)

	infra.Logger.Info(
		"server initialized",
		"store", cfg.Engine.Store,
		"sweep_interval", cfg.Engine.SweepInterval,
		"version", cfg.Version,
	)

	return &Server{
		infra:   infra,
		engine:  engine,
		sweeper: sweeper,
	}, nil
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.engine.Start(s.infra.Lifecycle); err != nil {
		return err
	}
	if err := s.sweeper.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
