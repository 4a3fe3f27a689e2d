package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultMinBytes    = 1
	defaultMaxBytes    = 10e6
	defaultMaxWait     = 500 * time.Millisecond
)

// ReaderOptions describes a consumer-group subscription to a single topic.
type ReaderOptions struct {
	Brokers     []string
	Topic       string
	GroupID     string
	StartOffset string
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ReaderConfig translates options into a kafka-go reader config. Offsets are committed
// explicitly by the caller (CommitInterval 0 makes CommitMessages synchronous).
func ReaderConfig(opts ReaderOptions) (kafka.ReaderConfig, error) {
	if len(opts.Brokers) == 0 {
		return kafka.ReaderConfig{}, errors.New("kafka: no brokers configured")
	}
	if strings.TrimSpace(opts.Topic) == "" {
		return kafka.ReaderConfig{}, errors.New("kafka: topic is empty")
	}
	if strings.TrimSpace(opts.GroupID) == "" {
		return kafka.ReaderConfig{}, errors.New("kafka: group id is empty")
	}

	startOffset := kafka.FirstOffset
	switch strings.ToLower(strings.TrimSpace(opts.StartOffset)) {
	case "", "earliest", "first":
	case "latest", "last":
		startOffset = kafka.LastOffset
	default:
		return kafka.ReaderConfig{}, fmt.Errorf("kafka: unknown start offset %q", opts.StartOffset)
	}

	return kafka.ReaderConfig{
		Brokers:        opts.Brokers,
		Topic:          opts.Topic,
		GroupID:        opts.GroupID,
		MinBytes:       defaultMinBytes,
		MaxBytes:       defaultMaxBytes,
		MaxWait:        defaultMaxWait,
		CommitInterval: 0,
		StartOffset:    startOffset,
	}, nil
}

// NewReader builds a consumer group reader after checking that the topic is reachable.
func NewReader(ctx context.Context, opts ReaderOptions) (*kafka.Reader, error) {
	cfg, err := ReaderConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := CheckTopic(ctx, opts.Brokers, opts.Topic); err != nil {
		return nil, err
	}
	return kafka.NewReader(cfg), nil
}

// CheckTopic dials the first reachable broker and verifies the topic has partitions.
func CheckTopic(ctx context.Context, brokers []string, topic string) error {
	var lastErr error
	for _, broker := range brokers {
		dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		partitions, err := conn.ReadPartitions(topic)
		conn.Close()
		if err != nil {
			return fmt.Errorf("kafka: read partitions of %s: %w", topic, err)
		}
		if len(partitions) == 0 {
			return fmt.Errorf("kafka: topic %s has no partitions", topic)
		}
		return nil
	}
	return fmt.Errorf("kafka: no broker reachable: %w", lastErr)
}
