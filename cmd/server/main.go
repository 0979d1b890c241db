package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"journez/backend/internal/api"
	"journez/backend/internal/app"
	"journez/backend/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg.ConfigureLogging()

	application, err := app.Build(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("build pipeline: %v", err)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close pipeline resources")
		}
	}()

	server, err := api.NewServer(application.Pipeline, api.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
		CacheBackend:   application.CacheBackend,
		CacheStats:     application.CacheStats,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	logrus.Infof("starting journez backend on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.Errorf("server exited: %v", err)
	}
}
