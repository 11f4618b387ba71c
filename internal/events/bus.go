// Package events is the Event Bus: it publishes the ten named orchestrator
// lifecycle events over NATS with OpenTelemetry trace-context propagation,
// the same subject-publish shape as the observed source's natsctx helper
// (libs/go/core/natsctx/natsctx.go) and control-plane's nats.Connect usage,
// degrading to in-process channel fan-out when no NATS URL is configured so
// a single-binary deployment never needs a broker to function.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskmesh/pto/internal/model"
)

const subjectPrefix = "pto."

var propagator = propagation.TraceContext{}

// Bus publishes orchestrator events. It implements worker.Emitter.
type Bus struct {
	nc     *nats.Conn
	tracer trace.Tracer

	mu          sync.RWMutex
	subscribers map[model.EventType][]chan model.Event
}

// NewBus connects to natsURL if non-empty; on a dial failure or an empty
// URL it returns a Bus that only fans events out in-process, logging the
// degradation once rather than failing startup.
func NewBus(natsURL string) *Bus {
	b := &Bus{
		tracer:      otel.Tracer("pto-events"),
		subscribers: make(map[model.EventType][]chan model.Event),
	}
	if natsURL == "" {
		slog.Info("event bus running in-process only, no NATS_URL configured")
		return b
	}
	nc, err := nats.Connect(natsURL)
	if err != nil {
		slog.Warn("event bus: nats connect failed, degrading to in-process fan-out", "url", natsURL, "error", err)
		return b
	}
	b.nc = nc
	return b
}

// Close releases the NATS connection, if any.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// Publish implements worker.Emitter. It has no context parameter, so trace
// propagation over NATS uses a fresh background context; callers who need a
// span-linked publish should use PublishCtx directly.
func (b *Bus) Publish(eventType model.EventType, payload interface{}) {
	b.PublishCtx(context.Background(), eventType, payload)
}

// PublishCtx publishes eventType with payload, injecting ctx's trace
// context into the NATS message headers when a broker is configured, and
// fanning the event out to any in-process subscribers regardless.
func (b *Bus) PublishCtx(ctx context.Context, eventType model.EventType, payload interface{}) {
	ev := model.Event{Type: eventType, Payload: payload}

	b.mu.RLock()
	subs := append([]chan model.Event(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("event subscriber channel full, dropping event", "type", eventType)
		}
	}

	if b.nc == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event bus: marshal failed", "type", eventType, "error", err)
		return
	}
	ctx, span := b.tracer.Start(ctx, "events.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: subjectPrefix + string(eventType), Data: data, Header: hdr}
	if err := b.nc.PublishMsg(msg); err != nil {
		slog.Error("event bus: publish failed", "type", eventType, "error", err)
	}
}

// Subscribe registers an in-process listener for eventType and returns a
// channel of events; the channel is never closed by the bus. Used by tests
// and same-process consumers rather than standing up a real NATS
// subscriber.
func (b *Bus) Subscribe(eventType model.EventType) <-chan model.Event {
	ch := make(chan model.Event, 32)
	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	b.mu.Unlock()
	return ch
}

// SubscribeNATS wraps nc.Subscribe, extracting the inbound trace context
// and starting a consumer span per message, mirroring the observed source's
// natsctx.Subscribe. Returns nil if the bus has no live NATS connection.
func (b *Bus) SubscribeNATS(subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	if b.nc == nil {
		return nil, nil
	}
	return b.nc.Subscribe(subjectPrefix+subject, func(m *nats.Msg) {
		carrier := propagation.HeaderCarrier(m.Header)
		ctx := propagator.Extract(context.Background(), carrier)
		ctx, span := b.tracer.Start(ctx, "events.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(ctx, m)
	})
}
