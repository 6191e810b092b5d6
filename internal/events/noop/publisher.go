package noop

import (
	"context"

	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/interfaces"
)

// Publisher discards every event. Used when no broker is configured.
type Publisher struct{}

func NewPublisher() *Publisher { return &Publisher{} }

func (*Publisher) Publish(context.Context, string, any) error { return nil }

var _ interfaces.EventPublisher = (*Publisher)(nil)
