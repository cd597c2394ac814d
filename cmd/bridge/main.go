package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"portalkeys-go/internal/bridge"
	"portalkeys-go/internal/config"
	"portalkeys-go/internal/envstore"
	"portalkeys-go/internal/logging"
	"portalkeys-go/internal/portal"
	"portalkeys-go/internal/tokenstore"
	"portalkeys-go/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Logging.Debug = true
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	log.Infof("Starting portalkeys bridge (config: %s)", *configPath)

	envs, err := envstore.Open(cfg.Storage.EnvironmentsFile)
	if err != nil {
		log.WithError(err).Fatal("failed to open environment registry")
	}
	defer envs.Close()
	envs.Watch()

	tokens, err := tokenstore.NewFileStore(cfg.Storage.TokenDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open token store")
	}

	requester := transport.New(transport.Options{
		OnlineBaseURL:   cfg.Portal.OnlineURL,
		LocationBaseURL: cfg.Portal.LocationURL,
		ProxyURL:        cfg.Portal.ProxyURL,
		RatePerSecond:   cfg.Portal.RatePerSecond,
	})
	portalClient := portal.NewClient(requester, portal.Options{
		PageSize:    cfg.Portal.PageSize,
		EnrichBatch: cfg.Portal.EnrichBatchSize,
	})

	svc := bridge.Services{
		Config: cfg,
		Envs:   envs,
		Tokens: tokens,
		Portal: portalClient,
		Auth:   bridge.StoredTokenAuthenticator{Tokens: tokens},
	}

	if !cfg.Logging.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	bridge.RegisterRoutes(engine, svc)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.WithField("addr", addr).Info("bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("Bridge stopped")
}
