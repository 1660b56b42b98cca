package engine

import (
	"context"
	"errors"
	"fmt"

	"sluice/internal/pipeline"
	"sluice/internal/telemetry"
	"sluice/internal/transport"
)

type Config struct {
	ControlPort int
	MetricsPort int
	PipelineYml string
}

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.PipelineYml == "" {
		return nil, errors.New("engine: pipeline config path is required")
	}

	// 1. stream processor
	proc, autostart, err := pipeline.Compile(cfg.PipelineYml)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// 2. control-plane server
	srv, err := transport.StartServer(cfg.ControlPort, proc)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	// 3. metrics
	telemetry.Expose(cfg.MetricsPort)

	if autostart {
		if err := proc.Start(ctx); err != nil {
			srv.Stop()
			return nil, fmt.Errorf("autostart: %w", err)
		}
	}

	return &Engine{
		transport: srv,
		proc:      proc,
	}, nil
}
