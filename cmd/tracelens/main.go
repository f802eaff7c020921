package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harryn0502/tracelens/internal/config"
	grpcserver "github.com/harryn0502/tracelens/internal/grpc"
	"github.com/harryn0502/tracelens/internal/handler"
	"github.com/harryn0502/tracelens/internal/ingest"
	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/replay"
	"github.com/harryn0502/tracelens/internal/server"
	"github.com/harryn0502/tracelens/internal/store"
	"github.com/harryn0502/tracelens/internal/uploader"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg := config.Load()

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	var sink uploader.Sink
	if cfg.SinkURL != "" {
		sink = uploader.New(uploader.Config{
			SinkURL:        cfg.SinkURL,
			MaxAttempts:    cfg.MaxRetries,
			BackoffInitial: cfg.BackoffInitial,
			BackoffMax:     30 * time.Second,
			InFlight:       100,
		})
	}

	ch := make(chan *model.Span, 1024)
	col := ingest.New(db, sink, ingest.Config{
		FlushInterval: cfg.FlushInterval,
		TraceTTL:      cfg.TraceTTL,
		GCInterval:    cfg.GCInterval,
		Duplicates:    cfg.DuplicatePolicy,
	}, ch)
	col.Start()
	defer col.Stop()

	api := &handler.API{
		Store:      db,
		Replay:     replay.NewManager(cfg.ReplayInterval),
		Duplicates: cfg.DuplicatePolicy,
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.NewRouter(cfg, ch, api),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  75 * time.Second,
	}

	var grpcSrv *grpcserver.Server
	if cfg.GRPCEnabled {
		grpcSrv, err = grpcserver.NewServer(cfg, ch)
		if err != nil {
			log.Fatalf("failed to create gRPC server: %v", err)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("tracelens v%s HTTP server listening on %s", Version, httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	if cfg.GRPCEnabled && grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("tracelens v%s gRPC server listening on %s", Version, grpcSrv.Addr())
			if err := grpcSrv.Start(); err != nil {
				log.Fatalf("gRPC server error: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown failed: %v", err)
	}

	if cfg.GRPCEnabled && grpcSrv != nil {
		grpcSrv.Stop()
	}

	// Stop drains and flushes every buffered trace; Flush then waits for the
	// sink deliveries those flushes started.
	col.Stop()

	if err := col.Flush(ctx); err != nil {
		log.Printf("failed to flush traces: %v", err)
	}

	log.Printf("shutdown complete")
}
