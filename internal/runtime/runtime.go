// ABOUTME: Supervises every worker pool for one process under an errgroup
// ABOUTME: Cancelling the parent context latches the hub's shutdown flag
package runtime

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool describes one named pool
type Pool struct {
	Name   string
	Size   int
	Worker WorkerFunc
}

// Runtime runs pools against a hub
type Runtime struct {
	Hub           *Hub
	CheckInterval time.Duration
}

// New returns a runtime for hub
func New(hub *Hub, checkInterval time.Duration) *Runtime {
	return &Runtime{Hub: hub, CheckInterval: checkInterval}
}

// Run blocks until every pool has drained. Shutdown is triggered by
// cancelling ctx or by setting Hub.Shutdown directly.
func (r *Runtime) Run(ctx context.Context, pools ...Pool) error {
	g, gctx := errgroup.WithContext(ctx)
	stopped := make(chan struct{})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			slog.Default().Info("shutdown requested", "component", "runtime")
			r.Hub.Shutdown.Set()
		case <-r.Hub.Shutdown.Done():
		case <-stopped:
		}
		return nil
	})

	var pg errgroup.Group
	for _, p := range pools {
		p := p
		pg.Go(func() error {
			RunPool(gctx, p.Name, p.Worker, p.Size, r.Hub.Shutdown, r.CheckInterval)
			return nil
		})
	}

	g.Go(func() error {
		err := pg.Wait()
		close(stopped)
		return err
	})

	return g.Wait()
}
