package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jonwraymond/brokerops/credentials"
	"github.com/jonwraymond/brokerops/reconnect"
)

type heartbeat struct {
	Host   string    `json:"host"`
	Seq    uint64    `json:"seq"`
	SentAt time.Time `json:"sent_at"`
}

// prober publishes confirmed heartbeats on whichever connection the
// supervisor currently provides.
type prober struct {
	cfg     PublishConfig
	log     *slog.Logger
	rotator *credentials.Rotator
	host    string
	seq     atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newProber(cfg PublishConfig, log *slog.Logger, rotator *credentials.Rotator) *prober {
	host, _ := os.Hostname()
	return &prober{cfg: cfg, log: log, rotator: rotator, host: host}
}

// onConnect is the reconnect.ConnectFunc.
func (p *prober) onConnect(conn *reconnect.Connection, err error) {
	if err != nil {
		p.log.Warn("broker connect attempt failed", "error", err)
		return
	}
	p.log.Info("broker connected", "remote", conn.RemoteAddr())

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	if p.rotator != nil {
		if err := p.rotator.Track(ctx, conn); err != nil {
			p.log.Warn("credential rotation not scheduled", "error", err)
		}
	}

	ch, err := conn.ConfirmChannel()
	if err != nil {
		// The supervisor replaces the connection.
		p.log.Warn("open channel failed", "error", err)
		return
	}
	if p.cfg.Queue != "" {
		if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
			p.log.Warn("declare queue failed", "queue", p.cfg.Queue, "error", err)
			return
		}
	}
	go p.publish(ctx, ch)
}

func (p *prober) publish(ctx context.Context, ch *reconnect.Channel) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ch.Closed() {
				return
			}
			p.publishOne(ctx, ch, now)
		}
	}
}

func (p *prober) publishOne(ctx context.Context, ch *reconnect.Channel, now time.Time) {
	seq := p.seq.Add(1)
	body, err := json.Marshal(heartbeat{Host: p.host, Seq: seq, SentAt: now.UTC()})
	if err != nil {
		p.log.Error("encode heartbeat", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Interval)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		p.log.Warn("publish failed", "seq", seq, "error", err)
		return
	}
	acked, err := dc.WaitContext(ctx)
	switch {
	case err != nil:
		p.log.Warn("confirm not received", "seq", seq, "error", err)
	case !acked:
		p.log.Warn("heartbeat nacked", "seq", seq)
	default:
		p.log.Debug("heartbeat confirmed", "seq", seq)
	}
}

func (p *prober) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
