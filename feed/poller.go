package feed

import (
	"context"
	"time"

	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/snapshot"
	"github.com/colorfulnotion/feauxviz/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// FrameSink receives every frame the poller takes.
type FrameSink interface {
	Record(f *snapshot.Frame) error
}

// Poller is the only goroutine that talks to the engine while the feed runs.
// On every tick it applies queued commands, takes a frame and publishes it.
type Poller struct {
	client   *engine.Client
	hub      *Hub
	sinks    []FrameSink
	interval time.Duration
	tick     uint64
}

func NewPoller(client *engine.Client, hub *Hub, interval time.Duration, sinks ...FrameSink) *Poller {
	return &Poller{client: client, hub: hub, interval: interval, sinks: sinks}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-p.hub.Commands():
			if err := cmd.Apply(ctx, p.client); err != nil {
				log.Warn(log.FeedMonitoring, "feed: command failed", "op", cmd.Op, "err", err)
				p.hub.Publish(Message{Type: "error", Error: err.Error()})
			}
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				log.Error(log.FeedMonitoring, "feed: poll", "tick", p.tick, "err", err)
				p.hub.Publish(Message{Type: "error", Error: err.Error()})
			}
		}
	}
}

// Poll takes one frame and hands it to the sinks and the hub.
func (p *Poller) Poll(ctx context.Context) (f *snapshot.Frame, err error) {
	ctx, span := tracing.Start(ctx, "feed.Poll", attribute.Int64("tick", int64(p.tick)))
	defer func() { tracing.End(span, err) }()

	f, err = p.client.Snapshot(ctx, p.tick)
	if err != nil {
		return nil, err
	}
	p.tick++
	for _, sink := range p.sinks {
		if err := sink.Record(f); err != nil {
			return f, err
		}
	}
	p.hub.Publish(Message{Type: "frame", Frame: f})
	return f, nil
}
