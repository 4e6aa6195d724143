// Package publish streams snapshots and health alerts to NATS JetStream.
package publish

import (
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	StreamName      = "LIQWATCH"
	SnapshotSubject = "liqwatch.snapshots"
	alertPrefix     = "liqwatch.alerts."
)

// AlertSubject is the subject alerts for address are published on.
func AlertSubject(address string) string {
	return alertPrefix + address
}

// JetStreamPublisher is the part of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher drains the publish channel. Publishing is best effort:
// failures are logged and counted, never retried, since the next cycle
// supersedes the snapshot anyway.
type Publisher struct {
	js        JetStreamPublisher
	inputChan <-chan *monitor.Snapshot
	alerts    *AlertTracker
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewPublisher(
	js JetStreamPublisher,
	inputChan <-chan *monitor.Snapshot,
	alerts *AlertTracker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		alerts:    alerts,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run publishes every snapshot from the channel until ctx is cancelled or
// the channel is closed.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if p.metrics != nil {
				p.metrics.SetChannelMetrics("publish", len(p.inputChan), cap(p.inputChan))
			}
			p.Publish(ctx, snap)
		}
	}
}

// Publish sends one snapshot and any alerts it raises.
func (p *Publisher) Publish(ctx context.Context, snap *monitor.Snapshot) {
	if err := p.publishSnapshot(ctx, snap); err != nil {
		p.logger.Warn().Err(err).Str("cycle_id", snap.CycleID.String()).Msg("snapshot publish failed")
		p.count("snapshot", "error")
	} else {
		p.count("snapshot", "ok")
	}

	if p.alerts == nil {
		return
	}
	before := p.alerts.Suppressed()
	for _, alert := range p.alerts.Evaluate(snap) {
		if p.metrics != nil {
			p.metrics.AlertsRaised.WithLabelValues(alert.Band).Inc()
		}
		if err := p.publishAlert(ctx, alert); err != nil {
			p.logger.Warn().Err(err).Str("address", alert.Address).Msg("alert publish failed")
			p.count("alert", "error")
			continue
		}
		p.count("alert", "ok")
		p.logger.Info().
			Str("address", alert.Address).
			Str("band", alert.Band).
			Str("previous_band", alert.PreviousBand).
			Float64("health_factor", alert.HealthFactor.Float64()).
			Msg("health alert raised")
	}
	if p.metrics != nil {
		p.metrics.AlertDedupHits.Add(float64(p.alerts.Suppressed() - before))
	}
}

func (p *Publisher) publishSnapshot(ctx context.Context, snap *monitor.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = p.js.Publish(ctx, SnapshotSubject, data, jetstream.WithMsgID(ContentHash(snap)))
	return err
}

func (p *Publisher) publishAlert(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msgID := fmt.Sprintf("%s:%s:%s", alert.CycleID, alert.Address, alert.Band)
	_, err = p.js.Publish(ctx, AlertSubject(alert.Address), data, jetstream.WithMsgID(msgID))
	return err
}

func (p *Publisher) count(kind, outcome string) {
	if p.metrics != nil {
		p.metrics.PublishTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// EnsureStream creates the LIQWATCH stream. The duplicate window bounds how
// long identical snapshot hashes are suppressed.
func EnsureStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{"liqwatch.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	logger.Info().Str("stream", StreamName).Msg("ensured stream")
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("liqwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
