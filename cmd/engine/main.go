package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"sluice/internal/engine"
	"sluice/internal/logging"

	_ "sluice/sink/kafka"
	_ "sluice/sink/stdout"
	_ "sluice/source/memory"
	_ "sluice/source/sqs"
)

func main() {
	logging.InitFromEnv()

	cfg := engine.Config{
		ControlPort: 5000,
		MetricsPort: 9100,
		PipelineYml: "pipeline.yml",
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	if err := e.Run(ctx); err != nil {
		log.Fatalf("engine: %v", err)
	}
}
