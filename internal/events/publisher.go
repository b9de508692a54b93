package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/config"
	"github.com/gridpulse/energy-sync/internal/syncer"
)

// Publisher emits a sync.completed event after every terminal sync run so
// downstream consumers (analytics, alerting) can react without polling the
// sync log. When no broker URL is configured the publisher is a no-op and
// the engine runs without RabbitMQ.
type Publisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher creates the sync-event publisher. An empty broker URL
// yields a disabled publisher, not an error.
func NewPublisher(lc fx.Lifecycle, cfg config.RabbitMQConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		logger.Info("RABBITMQ_URL not set, sync event publishing disabled")
		return &Publisher{logger: logger}, nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ. Please check: 1) RabbitMQ is running, 2) RABBITMQ_URL is correct, 3) Credentials are valid. Error: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("rabbitmq connection established successfully",
				zap.String("exchange", cfg.Exchange))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return p.close()
		},
	})

	return p, nil
}

// PublishSyncCompleted publishes one terminal sync result. Failures are
// logged and swallowed: event delivery must never fail a sync run.
func (p *Publisher) PublishSyncCompleted(ctx context.Context, event syncer.SyncEvent) {
	if p.channel == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal sync event", zap.Error(err))
		return
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish sync event",
			zap.String("entity_key", event.EntityKey),
			zap.String("domain", event.Domain),
			zap.Error(err))
		return
	}

	p.logger.Debug("published sync event",
		zap.String("routing_key", p.routingKey),
		zap.String("entity_key", event.EntityKey),
		zap.String("status", event.Status))
}

func (p *Publisher) close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error("failed to close rabbitmq channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error("failed to close rabbitmq connection", zap.Error(err))
			return err
		}
		p.logger.Info("rabbitmq connection closed")
	}
	return nil
}
