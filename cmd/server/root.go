package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/rendezvous/internal/adapter/codec/jsoncodec"
	"github.com/Wyydra/rendezvous/internal/adapter/driven/metrics"
	"github.com/Wyydra/rendezvous/internal/adapter/driven/registry/memory"
	"github.com/Wyydra/rendezvous/internal/adapter/driving/auth"
	handler "github.com/Wyydra/rendezvous/internal/adapter/driving/http"
	"github.com/Wyydra/rendezvous/internal/config"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/Wyydra/rendezvous/internal/core/service"
	"github.com/Wyydra/rendezvous/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	cfg        config.Config
}

func newFlags() *flags {
	return &flags{cfg: config.Default()}
}

func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rendezvous",
		Short:         "WebSocket signaling broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fl.StringVar(&f.cfg.Addr, "addr", f.cfg.Addr, "listen address")
	fl.StringVar(&f.cfg.Profile, "profile", f.cfg.Profile, "protocol profile (event or direct)")
	fl.DurationVar(&f.cfg.ShutdownTimeout, "shutdown-timeout", f.cfg.ShutdownTimeout, "graceful shutdown timeout")
	fl.StringVar(&f.cfg.Log.Level, "log-level", f.cfg.Log.Level, "log level")
	fl.StringVar(&f.cfg.Log.Format, "log-format", f.cfg.Log.Format, "log format (console or json)")
	fl.IntVar(&f.cfg.WebSocket.ReadBufferSize, "ws-read-buffer-size", f.cfg.WebSocket.ReadBufferSize, "websocket read buffer size")
	fl.IntVar(&f.cfg.WebSocket.WriteBufferSize, "ws-write-buffer-size", f.cfg.WebSocket.WriteBufferSize, "websocket write buffer size")
	fl.Int64Var(&f.cfg.WebSocket.MaxMessageSize, "ws-max-message-size", f.cfg.WebSocket.MaxMessageSize, "largest accepted inbound message in bytes")
	fl.DurationVar(&f.cfg.WebSocket.WriteWait, "ws-write-wait", f.cfg.WebSocket.WriteWait, "websocket write deadline")
	fl.DurationVar(&f.cfg.WebSocket.PongWait, "ws-pong-wait", f.cfg.WebSocket.PongWait, "websocket pong deadline")
	fl.DurationVar(&f.cfg.WebSocket.IdleTimeout, "ws-idle-timeout", f.cfg.WebSocket.IdleTimeout, "close peers silent for this long (0 disables)")
	fl.StringSliceVar(&f.cfg.WebSocket.AllowedOrigins, "ws-allowed-origins", f.cfg.WebSocket.AllowedOrigins, "origins accepted on upgrade (empty allows any)")
	fl.BoolVar(&f.cfg.Room.ExcludeSender, "exclude-sender", f.cfg.Room.ExcludeSender, "do not echo broadcasts to their sender")
	fl.StringVar(&f.cfg.Auth.JWTSecret, "jwt-secret", f.cfg.Auth.JWTSecret, "HMAC secret; enables token authentication")
	fl.StringVar(&f.cfg.Auth.JWTIssuer, "jwt-issuer", f.cfg.Auth.JWTIssuer, "required token issuer")
	fl.DurationVar(&f.cfg.Metrics.Interval, "metrics-interval", f.cfg.Metrics.Interval, "interval between logged metric snapshots (0 disables)")

	cmd.AddCommand(newTokenCmd(f))
	return cmd
}

// load merges file and environment configuration with the flags the user
// set explicitly.
func (f *flags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	set := func(name string, apply func()) {
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			apply()
		}
	}
	set("addr", func() { cfg.Addr = f.cfg.Addr })
	set("profile", func() { cfg.Profile = f.cfg.Profile })
	set("shutdown-timeout", func() { cfg.ShutdownTimeout = f.cfg.ShutdownTimeout })
	set("log-level", func() { cfg.Log.Level = f.cfg.Log.Level })
	set("log-format", func() { cfg.Log.Format = f.cfg.Log.Format })
	set("ws-read-buffer-size", func() { cfg.WebSocket.ReadBufferSize = f.cfg.WebSocket.ReadBufferSize })
	set("ws-write-buffer-size", func() { cfg.WebSocket.WriteBufferSize = f.cfg.WebSocket.WriteBufferSize })
	set("ws-max-message-size", func() { cfg.WebSocket.MaxMessageSize = f.cfg.WebSocket.MaxMessageSize })
	set("ws-write-wait", func() { cfg.WebSocket.WriteWait = f.cfg.WebSocket.WriteWait })
	set("ws-pong-wait", func() { cfg.WebSocket.PongWait = f.cfg.WebSocket.PongWait })
	set("ws-idle-timeout", func() { cfg.WebSocket.IdleTimeout = f.cfg.WebSocket.IdleTimeout })
	set("ws-allowed-origins", func() { cfg.WebSocket.AllowedOrigins = f.cfg.WebSocket.AllowedOrigins })
	set("exclude-sender", func() { cfg.Room.ExcludeSender = f.cfg.Room.ExcludeSender })
	set("jwt-secret", func() { cfg.Auth.JWTSecret = f.cfg.Auth.JWTSecret })
	set("jwt-issuer", func() { cfg.Auth.JWTIssuer = f.cfg.Auth.JWTIssuer })
	set("metrics-interval", func() { cfg.Metrics.Interval = f.cfg.Metrics.Interval })

	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg config.Config) error {
	l, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	log.Logger = l

	profile, err := service.ParseProfile(cfg.Profile)
	if err != nil {
		return err
	}

	var h port.Handler = service.DefaultHandler{}
	if cfg.Auth.JWTSecret != "" {
		h = auth.NewJWTHandler([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
		l.Info().Msg("Token authentication enabled")
	}

	m := metrics.New()
	registry := memory.NewRegistry()
	broker := service.NewBroker(registry, h, jsoncodec.New(), l, m, service.BrokerConfig{
		Profile:       profile,
		ExcludeSender: cfg.Room.ExcludeSender,
		IdleTimeout:   cfg.WebSocket.IdleTimeout,
	})

	httpHandler := handler.NewHandler(broker, m, handler.Config{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		MaxMessageSize:  cfg.WebSocket.MaxMessageSize,
		WriteWait:       cfg.WebSocket.WriteWait,
		PongWait:        cfg.WebSocket.PongWait,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpHandler.NewRouter(),
	}

	stopMetrics := make(chan struct{})
	if cfg.Metrics.Interval > 0 {
		go m.Report(l, cfg.Metrics.Interval, stopMetrics)
	}

	errc := make(chan error, 1)
	go func() {
		l.Info().Str("addr", cfg.Addr).Str("profile", string(profile)).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		close(stopMetrics)
		return err
	case <-ctx.Done():
	}
	l.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}
	httpHandler.Close()
	if err := broker.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Failed to stop rooms")
	}
	close(stopMetrics)

	l.Info().Msg("Server exited")
	return nil
}
