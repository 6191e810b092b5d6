package interfaces

import "context"

// EventPublisher emits post-commit notifications. Publishing is best effort:
// the engine never rolls back a committed operation because a publish failed.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
