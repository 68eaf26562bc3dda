package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	"github.com/smallbiznis/utilitybill/internal/audit/masking"
	"github.com/smallbiznis/utilitybill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher emits events as JSON on "<prefix>.<action>" subjects.
type Publisher struct {
	conn   Conn
	prefix string
	log    *zap.Logger
}

func New(conn Conn, prefix string, log *zap.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "billing.events"
	}
	return &Publisher{conn: conn, prefix: prefix, log: log.Named("audit.publisher")}
}

func (p *Publisher) Subject(action string) string {
	return p.prefix + "." + strings.TrimSpace(action)
}

func (p *Publisher) Emit(_ context.Context, evt auditdomain.Event) error {
	evt.Before = masking.MaskFields(evt.Before, masking.DefaultSensitiveKeys...)
	evt.After = masking.MaskFields(evt.After, masking.DefaultSensitiveKeys...)

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	subject := p.Subject(evt.Action)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Connect dials NATS when a URL is configured. A nil connection means event
// publishing is disabled.
func Connect(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*nats.Conn, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.ClientName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, err
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return nc.Drain()
			},
		})
	}

	log.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}
