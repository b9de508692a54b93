package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates a new structured logger
func NewLogger(serviceName string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// WithSyncRun returns a logger scoped to one sync run
func WithSyncRun(logger *zap.Logger, domain string, entityKey string) *zap.Logger {
	return logger.With(
		zap.String("sync_domain", domain),
		zap.String("entity_key", entityKey),
	)
}
