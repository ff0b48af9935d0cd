package app

import (
	"context"

	"github.com/uvci/resto/internal/server"
)

// Serve builds the handler and runs it until ctx is done.
func (a *Application) Serve(ctx context.Context, cfg server.Config) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}
	cfg.Handler = handler
	return server.Run(ctx, cfg)
}
