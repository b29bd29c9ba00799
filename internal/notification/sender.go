// Package notification delivers citizen notifications. Delivery is a log
// line per message; a mail or SMS gateway plugs in behind the same Send.
package notification

import (
	"context"
	"fmt"

	"github.com/Domenick1991/terminbooking/internal/kafka"
	"go.uber.org/zap"
)

type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, n kafka.Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("notification %s has no recipient", n.Template)
	}
	s.log.Info("send notification",
		zap.String("channel", n.Channel),
		zap.String("recipient", n.Recipient),
		zap.String("template", n.Template),
		zap.Any("data", n.Data),
	)
	return nil
}
