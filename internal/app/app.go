// Package app wires configuration, storage and the transport layer into a
// runnable process and handles graceful shutdown.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatrelay/internal/accounts"
	"github.com/Tyrowin/chatrelay/internal/auth"
	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/config"
	"github.com/Tyrowin/chatrelay/internal/delivery"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/presence"
	"github.com/Tyrowin/chatrelay/internal/registry"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/store"
	"github.com/Tyrowin/chatrelay/internal/store/memory"
	"github.com/Tyrowin/chatrelay/internal/store/postgres"
)

type App struct {
	config      config.Config
	logger      logging.Logger
	store       store.Store
	coordinator *delivery.Coordinator
	presence    *presence.Broadcaster
	server      *server.Server
	httpServer  *http.Server
}

// NewApp builds every component. With no DatabaseDSN messages and users
// live in memory and are lost on exit.
func NewApp(ctx context.Context, cfg config.Config, logger logging.Logger) (*App, error) {
	cfg = cfg.Sanitize()
	clock := chat.NewClock()

	var st store.Store
	if cfg.DatabaseDSN != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseDSN, clock)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		st = pg
		logger.Info(ctx, "using postgres store")
	} else {
		st = memory.New(clock)
		logger.Warn(ctx, "DATABASE_DSN not set, using in-memory store")
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		logger.Warn(ctx, "JWT_SECRET not set, tokens will not survive a restart")
	}

	m := metrics.New()
	reg := registry.New(logger, m)
	tokens := auth.NewIssuer(secret, cfg.TokenTTL)
	coord := delivery.New(st.Messages(), reg, delivery.Config{
		DedupWindow:    cfg.DedupWindow,
		PersistTimeout: cfg.PersistTimeout,
	}, logger, m)
	pres := presence.New(reg, logger, m)

	srv := server.New(cfg, server.Deps{
		Registry:    reg,
		Coordinator: coord,
		Presence:    pres,
		Accounts:    accounts.NewService(st.Users(), tokens, reg),
		Messages:    st.Messages(),
		Tokens:      tokens,
		Logger:      logger,
		Metrics:     m,
	})

	return &App{
		config:      cfg,
		logger:      logger,
		store:       st,
		coordinator: coord,
		presence:    pres,
		server:      srv,
		httpServer:  server.CreateServer(cfg.Port, srv.Routes()),
	}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down the HTTP server, the connections and the store.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.logger.Info(ctx, "starting chatrelay", "addr", app.config.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.coordinator.Run(gctx)
		return nil
	})
	g.Go(func() error {
		app.presence.Run(gctx)
		return nil
	})

	app.server.StartHub()
	g.Go(func() error {
		return app.server.Serve(app.httpServer)
	})

	g.Go(func() error {
		<-gctx.Done()
		return app.server.Shutdown(app.httpServer, app.config.ShutdownTimeout)
	})

	err := g.Wait()
	if cerr := app.store.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}

	if err != nil {
		app.logger.Error(context.Background(), "chatrelay stopped with error", "error", err)
		return err
	}
	app.logger.Info(context.Background(), "chatrelay stopped")
	return nil
}
