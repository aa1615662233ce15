// Package app wires the service together: configuration, logging, store,
// pipeline, HTTP server and the snapshot scheduler.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"chatgraph/internal/snapshot"
	"chatgraph/pkg/api"
	"chatgraph/pkg/config"
	"chatgraph/pkg/ingest"
	"chatgraph/pkg/logger"
	"chatgraph/pkg/store"
)

// App holds the running service components.
type App struct {
	cfg   *config.Config
	addr  string
	st    *store.Store
	pipe  *ingest.Pipeline
	queue *ingest.Queue
	srv   *http.Server

	stopSnapshot context.CancelFunc
	waitWorkers  func()
}

// New opens the store and builds the pipeline and HTTP layer. Call Run to
// start serving and block until ctx is cancelled.
func New(cfg *config.Config, addr, dbPath string) (*App, error) {
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	if err := ensureStateDirs(dbPath); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}
	st, err := store.Open(filepath.Join(dbPath, "store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pipe := ingest.New(st)
	queue := ingest.NewQueue(cfg.Ingest.QueueCapacity)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(pipe, queue, st, cfg).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &App{cfg: cfg, addr: addr, st: st, pipe: pipe, queue: queue, srv: srv}, nil
}

// Run starts workers, the snapshot scheduler and the HTTP server, then
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.waitWorkers = a.queue.RunWorkers(ctx, a.cfg.Workers(), a.pipe)

	stop, err := snapshot.Start(ctx, a.cfg, a.st)
	if err != nil {
		return err
	}
	a.stopSnapshot = stop

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		_ = a.shutdown()
		return err
	}
}

// shutdown stops the HTTP server first so no handler can enqueue into a
// closed queue, then drains workers and closes the store.
func (a *App) shutdown() error {
	logger.Info("shutting_down")
	if a.stopSnapshot != nil {
		a.stopSnapshot()
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(sctx)
	a.queue.Close()
	if a.waitWorkers != nil {
		a.waitWorkers()
	}
	return a.st.Close()
}
