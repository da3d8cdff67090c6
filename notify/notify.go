// Package notify delivers leave events to people and downstream systems.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// LogNotifier writes every event to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("leave.notify")}
}

func (n *LogNotifier) Notify(_ context.Context, event leave.Event) error {
	fields := []zap.Field{
		zap.String("event", string(event.Type)),
		zap.String("employee_id", string(event.EmployeeID)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.Any(k, v))
	}
	n.logger.Info("leave event", fields...)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []leave.Notifier

func (m Multi) Notify(ctx context.Context, event leave.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
