package worker

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/spec-kit/rumi-monitor/internal/service"
)

// StartNotificationWorker registers notification handlers and closes the
// outcome sinks once ctx is done.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, logger *zap.Logger, sinks ...io.Closer) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if len(sinks) == 0 {
		return
	}
	go func() {
		<-ctx.Done()
		for _, sink := range sinks {
			if err := sink.Close(); err != nil {
				logger.Warn("closing event sink failed", zap.Error(err))
			}
		}
	}()
}
