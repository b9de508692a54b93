package main

import (
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/config"
	"github.com/gridpulse/energy-sync/internal/logging"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
