package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/siftech/lookout/internal/config"
	"github.com/siftech/lookout/internal/log"
	"github.com/siftech/lookout/internal/service"
	"github.com/siftech/lookout/pkg/api"
	"github.com/siftech/lookout/pkg/eventloop"
	"github.com/siftech/lookout/pkg/resolver"
)

func main() {
	// load config
	cfg, err := config.New().Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// build deps
	loop := eventloop.New(cfg.Loop.QueueSize)
	res := resolver.New(loop, func() resolver.Backend {
		return resolver.NewDNSBackend(loop, cfg.Resolver.QueryTimeout, cfg.Resolver.Retries)
	})
	svc := service.New(loop, res)
	apiSrv := api.New(svc, cfg.Resolver.QueryTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(runCtx) })
	g.Go(func() error {
		log.Infof("api: listening on %s", cfg.Socket.Path)
		if err := apiSrv.ListenAndServe(cfg.Socket.Path); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Infof("received %s, shutting down", s)
	case <-runCtx.Done():
		// one of the goroutines failed
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	err = apiSrv.Shutdown(shutdownCtx)
	svc.Close()
	if err = multierr.Append(err, g.Wait()); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
	log.Info("stopped")
}
