package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/poiesic/docreply/server"
	"github.com/poiesic/docreply/transport/kafka"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP server (webhook, documents, tenants, web chat)",
		Action: serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.addr)",
			},
			&cli.BoolFlag{
				Name:  "queue",
				Usage: "Publish webhook events to Kafka instead of handling them in-process",
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if c.Bool("queue") && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("--queue needs kafka.brokers")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	pipeline, err := svc.NewPipeline()
	if err != nil {
		return err
	}
	resp, err := svc.NewResponder(svc.NewSender())
	if err != nil {
		pipeline.Release()
		return err
	}
	extractor, err := svc.NewExtractor()
	if err != nil {
		pipeline.Release()
		resp.Release()
		return err
	}

	opts := []server.Option{
		server.WithVerifyToken(cfg.Server.WebhookVerifyToken),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithRequestTimeout(cfg.Server.WriteTimeout),
	}
	if c.Bool("queue") {
		producer := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		defer producer.Close()
		opts = append(opts, server.WithEventSink(producer.Publish))
	}

	srv, err := server.New(server.Dependencies{
		Store:     svc.Store(),
		Pipeline:  pipeline,
		Responder: resp,
		Extractor: extractor,
		Metrics:   svc.Metrics(),
	}, opts...)
	if err != nil {
		pipeline.Release()
		resp.Release()
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down http server", "err", err)
	}
	if err := resp.Drain(cfg.Server.ShutdownTimeout); err != nil {
		slog.Warn("responder did not drain", "err", err)
	}
	if err := pipeline.Drain(cfg.Server.ShutdownTimeout); err != nil {
		slog.Warn("ingestion did not drain", "err", err)
	}
	return nil
}
