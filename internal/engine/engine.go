package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sluice/internal/logging"
	"sluice/internal/processor"
	"sluice/internal/transport"
)

type Engine struct {
	transport *transport.Server
	proc      *processor.Engine
}

func (e *Engine) Processor() *processor.Engine { return e.proc }

func (e *Engine) Run(ctx context.Context) error {

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.proc.Stop(stopCtx); err != nil && !errors.Is(err, processor.ErrNotRunning) {
			logging.L().Warn("engine: processor stop", "err", err)
		}
		e.transport.Stop()
	}()

	if err := e.transport.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
