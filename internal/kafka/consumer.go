package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

func NewConsumer(brokers []string, groupID, topic string, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		log: log,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// ConsumeNotifications reads until ctx is cancelled or the reader fails.
// Undecodable messages are skipped; a handler error stops consumption.
func (c *Consumer) ConsumeNotifications(ctx context.Context, handler func(context.Context, Notification) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		n, ok := c.decode(msg)
		if !ok {
			continue
		}
		if err := handler(ctx, n); err != nil {
			return err
		}
	}
}

func (c *Consumer) decode(msg kafka.Message) (Notification, bool) {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		c.log.Warn("skip undecodable notification",
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition),
			zap.Error(err),
		)
		return n, false
	}
	return n, true
}
