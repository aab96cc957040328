package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/rumi-monitor/internal/events"
)

// NotificationService logs monitor outcomes and forwards them to any
// configured sinks (e.g. the Kafka producer).
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sinks      []events.EventHandler
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sinks ...events.EventHandler) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sinks:      sinks,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventMonitorStarted, n.handleMonitorStarted)
	n.dispatcher.Subscribe(events.EventMonitorStopped, n.handleMonitorStopped)
	n.dispatcher.Subscribe(events.EventMonitorCircuitPause, n.handleCircuitPaused)
	n.dispatcher.Subscribe(events.EventTicketProcessed, n.handleTicketProcessed)
}

func (n *NotificationService) handleMonitorStarted(ctx context.Context, event events.Event) error {
	n.logger.Info("MonitorStarted", zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleMonitorStopped(ctx context.Context, event events.Event) error {
	n.logger.Info("MonitorStopped", zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleCircuitPaused(ctx context.Context, event events.Event) error {
	n.logger.Warn("MonitorCircuitPaused", zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleTicketProcessed(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketProcessed", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

// forward delivers to every sink; the first failure is returned.
func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	var first error
	for _, sink := range n.sinks {
		if err := sink(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
