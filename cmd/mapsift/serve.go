package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/mapsift/internal/logging"
	"github.com/rendis/mapsift/internal/pipeline"
	"github.com/rendis/mapsift/internal/server"
	"github.com/rendis/mapsift/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API with live search logs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ServerAddr = serveAddr
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(server.Options{
		Searcher: p,
		Store:    session.NewMemoryStore(),
		Logger:   logger,
	})
	defer srv.Close()
	return srv.Run(ctx, cfg.ServerAddr)
}
