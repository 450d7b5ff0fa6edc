package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS event bridge.
type NATSConfig struct {
	// URL is the NATS server address.
	URL string

	// SubjectPrefix prefixes the published subjects:
	// <prefix>.status, <prefix>.log, <prefix>.complete.
	SubjectPrefix string
}

// NATSPublisher mirrors the engine's event stream onto NATS subjects so
// external consumers can observe runs without holding an in-process
// subscription.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
	cancel func()
	done   chan struct{}
}

// NewNATSPublisher connects to NATS and starts bridging events from the bus.
func NewNATSPublisher(cfg NATSConfig, bus *Bus, logger *zap.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	ch, cancel := bus.Subscribe()
	p := &NATSPublisher{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		logger: logger.Named("nats"),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go p.pump(ch)
	return p, nil
}

func (p *NATSPublisher) pump(ch <-chan Event) {
	defer close(p.done)
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.Warn("failed to encode event", zap.Error(err))
			continue
		}
		if err := p.conn.Publish(p.subject(ev.Type), data); err != nil {
			p.logger.Warn("failed to publish event",
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

func (p *NATSPublisher) subject(t Type) string {
	switch t {
	case TypeStatusChanged:
		return p.prefix + ".status"
	case TypeLogEmitted:
		return p.prefix + ".log"
	case TypeCompleted:
		return p.prefix + ".complete"
	default:
		return p.prefix + ".event"
	}
}

// Close stops the bridge and drains the connection.
func (p *NATSPublisher) Close() {
	p.cancel()
	<-p.done
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("failed to drain NATS connection", zap.Error(err))
	}
}
