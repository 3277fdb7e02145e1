package main

import (
	"flag"
	"net/http"

	"go.uber.org/zap"

	"github.com/weeklist/weeklist/internal/config"
	"github.com/weeklist/weeklist/internal/httpapi"
	"github.com/weeklist/weeklist/internal/notify"
	"github.com/weeklist/weeklist/internal/weeklist"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}

	store, err := weeklist.BuildStoreFromDSN(cfg.StoreDSN)
	if err != nil {
		logger.Fatal("initializing store", zap.Error(err))
	}
	defer store.Close()

	dispatcher := notify.NewDispatcher(store, notify.Options{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDContact,
	}, logger)

	server := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
		Logger:   logger,
		Notifier: dispatcher,
	})

	logger.Info("weeklistd listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDSN))
	if err := http.ListenAndServe(cfg.Addr, server); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
