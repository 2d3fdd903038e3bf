package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-mailorder-bridge/internal/config"
	"github.com/imrishuroy/go-mailorder-bridge/internal/gateway"
	"github.com/imrishuroy/go-mailorder-bridge/internal/handlers"
	"github.com/imrishuroy/go-mailorder-bridge/internal/logging"
	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		logrus.WithError(err).Fatal("failed to init logging")
	}
	defer closeLog()
	log := logger.WithField("service", cfg.ServiceName)

	store := orders.NewStore(cfg.DataDir, log.WithField("component", "store"))
	if err := store.Init(); err != nil {
		log.WithError(err).Fatal("failed to init order store")
	}

	reg := metrics.NewRegistry()
	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.HandlerConfig{
		Service:     gateway.NewService(store, reg, log.WithField("component", "gateway")),
		Metrics:     reg,
		APIKey:      cfg.APIKey,
		RateLimit:   cfg.RateLimit.Limit(),
		RateBurst:   cfg.RateLimit.Burst(),
		ServiceName: cfg.ServiceName,
		Version:     version,
		Log:         log.WithField("component", "http"),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "data_dir": cfg.DataDir}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		closeLog()
		os.Exit(1)
	}
}
