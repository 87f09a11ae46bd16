package catalogevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/core/observability"
)

// Publisher sends one event per newly indexed dataset. Publishing never
// blocks a scan: when the queue is full the event is dropped.
type Publisher struct {
	topic    string
	events   chan Event
	prod     sarama.AsyncProducer
	log      *slog.Logger
	now      func() time.Time
	stopped  chan struct{}
	errsDone chan struct{}
}

func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("catalogevents: create async producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, queueSize, log), nil
}

// NewPublisherWithProducer takes ownership of prod.
func NewPublisherWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Publisher{
		topic:    topic,
		events:   make(chan Event, queueSize),
		prod:     prod,
		log:      log,
		now:      time.Now,
		stopped:  make(chan struct{}),
		errsDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("catalogevents: marshal", "path", ev.Path, "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Path),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errsDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.ObserveCatalogEvent("error")
				p.log.Warn("catalogevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Indexed queues the event for d.
func (p *Publisher) Indexed(_ context.Context, d model.DatasetDescriptor) {
	ev, err := FromDescriptor(d, p.now())
	if err != nil {
		p.log.Warn("catalogevents: build event", "path", d.Path, "err", err)
		return
	}
	select {
	case p.events <- ev:
		observability.ObserveCatalogEvent("enqueued")
	default:
		observability.ObserveCatalogEvent("dropped")
	}
}

// Close flushes queued events and shuts the producer down.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errsDone
	if err != nil {
		return fmt.Errorf("catalogevents: close producer: %w", err)
	}
	return nil
}
