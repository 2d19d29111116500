package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dendroreduce/internal/config"
	"dendroreduce/internal/repository/sqlite"
	"dendroreduce/internal/service"
	"dendroreduce/internal/telemetry"
)

// App holds what the subcommands share. The database and telemetry are
// opened on first use.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *log.Logger
	Verbose    bool

	repo      *sqlite.Repository
	telemetry *telemetry.Telemetry
	service   *service.ReductionService
	events    chan service.Event
	done      chan struct{}
}

func newApp(configPath string, verbose, quiet bool) (*App, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if configPath != "" {
		cfg, path, err = config.LoadFromPath(configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if quiet || cfg.Logging.Quiet {
		out = io.Discard
	}
	return &App{
		Config:     cfg,
		ConfigPath: path,
		Logger:     log.New(out, cfg.Logging.Prefix, log.LstdFlags),
		Verbose:    verbose,
	}, nil
}

// Service opens the run database and telemetry and returns the reduction
// service
func (a *App) Service(ctx context.Context) (*service.ReductionService, error) {
	if a.service != nil {
		return a.service, nil
	}

	registry, err := a.Config.Registry()
	if err != nil {
		return nil, err
	}

	a.telemetry, err = telemetry.New(ctx, a.Config.TelemetryConfig(version))
	if err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}

	dbPath := a.Config.Database.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	a.repo, err = sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}

	bus := service.NewEventBus()
	if a.Verbose {
		a.events = make(chan service.Event, 16)
		a.done = make(chan struct{})
		bus.Subscribe(a.events)
		go func() {
			defer close(a.done)
			for event := range a.events {
				a.Logger.Printf("event %s: %v", event.Type, event.Payload)
			}
		}()
	}

	a.service = service.NewReductionService(a.repo, bus, registry, a.telemetry, a.Logger)
	return a.service, nil
}

// Close flushes telemetry and closes the database
func (a *App) Close() {
	if a.events != nil {
		close(a.events)
		<-a.done
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.Logger.Printf("Warning: telemetry shutdown: %v", err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.Logger.Printf("Warning: close database: %v", err)
		}
	}
}

// formatOf returns the model format named by a file extension
func formatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
