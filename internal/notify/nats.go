package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

const (
	streamName   = "PROGAN_EVENTS"
	statusBucket = "progan_status"
)

// NATSPublisher publishes events to JetStream on "{subject}.{run}.{type}" and keeps the
// latest run status in a key-value bucket.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	kv      jetstream.KeyValue
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to cfg.NATSURL and makes sure the stream and status bucket exist.
func NewNATSPublisher(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.NATSURL == "" {
		return nil, errors.NotifyError("events.nats_url is empty").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("progan"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).Build()
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to create JetStream context").Build()
	}

	p := &NATSPublisher{conn: conn, js: js, subject: cfg.Subject, logger: logger}
	if err := p.init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("NATS event publisher initialized", "url", cfg.NATSURL, "subject", cfg.Subject)
	return p, nil
}

func (p *NATSPublisher) init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "progan training run events",
		Subjects:    []string{p.subject + ".>"},
		MaxAge:      30 * 24 * time.Hour,
	}); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to create event stream").Build()
	}

	kv, err := p.js.KeyValue(ctx, statusBucket)
	if err != nil {
		kv, err = p.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      statusBucket,
			Description: "Latest status per training run",
			History:     1,
		})
		if err != nil {
			return errors.WrapError(err, errors.CategoryNotify, "failed to create status bucket").Build()
		}
	}
	p.kv = kv
	return nil
}

// Subject returns the subject an event is published on.
func Subject(base string, e eventstore.Event) string {
	return base + "." + token(e.RunID()) + "." + e.Type()
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

func (p *NATSPublisher) Publish(ctx context.Context, e eventstore.Event) error {
	data, err := Encode(e)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to encode event").Build()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(ctx, Subject(p.subject, e), data); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to publish event").
			WithContext("type", e.Type()).Build()
	}
	p.logger.Debug("Published event", "type", e.Type(), "run_id", e.RunID())
	return nil
}

func (p *NATSPublisher) PutStatus(ctx context.Context, runID string, status []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := p.kv.Put(ctx, token(runID), status); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to store run status").Build()
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
