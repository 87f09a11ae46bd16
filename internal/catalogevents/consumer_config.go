package catalogevents

import (
	"strings"
	"time"
)

type ConsumerConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

// DefaultConsumerConfig replays the topic from the start so a fresh replica
// catches up with every dataset its peers have indexed.
func DefaultConsumerConfig(brokers []string, topic, group string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:             brokers,
		Topic:               topic,
		GroupID:             group,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
	}
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
