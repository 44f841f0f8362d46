package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"emission-service/internal/logging"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Broker  string
	Topic   string
	GroupID string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer feeds records from a topic into a Submitter. A message value
// carries one or more JSON lines.
type KafkaConsumer struct {
	reader messageReader
	sub    Submitter
	logger *logging.Logger
}

func NewKafkaConsumer(cfg KafkaConfig, sub Submitter, logger *logging.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     strings.Split(cfg.Broker, ","),
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return &KafkaConsumer{reader: reader, sub: sub, logger: logger}
}

// Start consumes until ctx is cancelled.
func (c *KafkaConsumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		c.run(ctx)
		c.logger.Info("Kafka consumer stopped")
	}()
}

func (c *KafkaConsumer) run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Errorf("Read message failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		stats, err := ReadLines(ctx, bytes.NewReader(msg.Value), c.sub, c.logger)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Errorf("Message at offset %d partition %d unreadable: %v", msg.Offset, msg.Partition, err)
		}
		if stats.Skipped > 0 {
			c.logger.Warnf("Message at offset %d: %d records queued, %d skipped", msg.Offset, stats.Queued, stats.Skipped)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
