package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	api "github.com/jcason-sudo/AIEmailSummary/cmd/api"
	"github.com/jcason-sudo/AIEmailSummary/pkg/config"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("could not create data directory")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server, err := api.NewServer(ctx, cfg, log, "web")
	cancel()
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer server.Close()

	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
