package cli

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ytbatch/internal/batch"
	"ytbatch/internal/config"
	"ytbatch/internal/events"
	"ytbatch/internal/server"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "settings file")
	addr := fs.String("addr", "", "listen address (default: settings server.addr)")
	logFile := fs.String("log-file", "", "write logs to this file instead of stderr")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := openLogger(*logFile, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	listen := strings.TrimSpace(*addr)
	if listen == "" {
		listen = store.Get().Server.Addr
	}
	if store.Watch(func(c config.Config) {
		logger.Printf("settings reloaded: output=%s max_parallel=%d format=%s", c.OutputFolder, c.MaxParallel, c.AudioFormat)
	}) {
		logger.Printf("watching %s", store.Path())
	}

	hub := events.NewHub()
	defer hub.Close()
	coord := batch.NewCoordinator(hub, server.RunnerFromStore(store, logger), logger)
	srv := server.New(server.Options{
		Store:       store,
		Coordinator: coord,
		Hub:         hub,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, listen)
}
