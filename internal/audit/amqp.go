package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// AMQPConfig configura el publisher de auditoría.
type AMQPConfig struct {
	URL      string        `yaml:"url"`
	Exchange string        `yaml:"exchange"`
	Timeout  time.Duration `yaml:"timeout"`
}

// publisher es la parte de *amqp.Channel que usa el sink.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publica cada evento como JSON con routing key "audit.<event>".
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       publisher
	exchange string
	timeout  time.Duration
}

// DialAMQP conecta y declara el exchange (topic, durable).
func DialAMQP(cfg AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("audit: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: amqp channel: %w", err)
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "hellojohn.audit"
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: exchange declare: %w", err)
	}
	s := newAMQPSink(ch, exchange, cfg.Timeout)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch publisher, exchange string, timeout time.Duration) *AMQPSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AMQPSink{ch: ch, exchange: exchange, timeout: timeout}
}

func (s *AMQPSink) Emit(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		logger.From(ctx).Warn("audit marshal failed", logger.Component("audit"), logger.Err(err))
		return
	}

	// El publish no debe heredar la cancelación del request.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(pctx, s.exchange, "audit."+e.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.Time,
		Type:         e.Name,
		Body:         body,
	})
	if err != nil {
		logger.From(ctx).Warn("audit publish failed",
			logger.Component("audit"),
			logger.String("event", e.Name),
			logger.Err(err),
		)
	}
}

// Close cierra la conexión si el sink la abrió.
func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
