package queue

import (
	"context"

	"github.com/velis74/notify-engine/internal/domain"
)

// Publisher publishes dispatch messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// DispatchQueueName is the single work queue for deferred dispatches.
	DispatchQueueName = "notifications.dispatch"

	// DispatchDLQName receives dispatch messages rejected or dead-lettered
	// by the worker.
	DispatchDLQName = "dlq.notifications.dispatch"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the work queue.
	queueMaxPriority int32 = 3
)

// PriorityValue maps notification severity to RabbitMQ message priority so
// error-level notifications jump the line under backlog.
func PriorityValue(level domain.Level) uint8 {
	switch level {
	case domain.LevelError:
		return 3
	case domain.LevelWarning:
		return 2
	case domain.LevelInfo, domain.LevelSuccess:
		return 1
	default:
		return 0
	}
}
