package catalogevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/kproj6/featureserver/internal/core/model"
	obs "github.com/kproj6/featureserver/internal/core/observability"
	mylog "github.com/kproj6/featureserver/internal/logger"
)

// Applier receives descriptors indexed by a peer.
type Applier interface {
	Apply(ctx context.Context, d model.DatasetDescriptor) (bool, error)
}

type Consumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger
	apply  Applier
	zlog   *zerolog.Logger
}

// NewConsumer logs lifecycle through logger and per-message detail through zl.
// A nil zl discards per-message logs.
func NewConsumer(cfg ConsumerConfig, logger *slog.Logger, zl *zerolog.Logger, apply Applier) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	return &Consumer{cfg: cfg, logger: logger, apply: apply, zlog: mylog.Component(*zl, "catalog_events")}
}

func (c *Consumer) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	return cfg
}

// Start joins the consumer group and applies events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.apply == nil {
		return errors.New("catalogevents: missing applier")
	}

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, c.saramaConfig())
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("catalog event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("catalog event consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single message. Undecodable or invalid events are
// logged and acknowledged so they cannot wedge the partition; apply failures
// are returned so the offset is not committed.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveCatalogEvent("decode_error")
		c.zlog.Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.ObserveCatalogEvent("rejected")
		c.logger.Warn("catalog event rejected", "path", ev.Path, "err", err)
		return nil
	}

	inserted, err := c.apply.Apply(ctx, ev.Descriptor())
	if err != nil {
		obs.ObserveCatalogEvent("apply_error")
		return fmt.Errorf("apply %s: %w", ev.Path, err)
	}
	if inserted {
		obs.ObserveCatalogEvent("applied")
	} else {
		obs.ObserveCatalogEvent("duplicate")
	}
	mylog.FromContext(ctx, c.zlog).Debug().
		Str("event", ev.Op).
		Str("path", ev.Path).
		Bool("inserted", inserted).
		Msg("catalog event applied")
	return nil
}
