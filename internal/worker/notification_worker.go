package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/service"
)

// StartNotificationWorker registers notification handlers on the dispatcher
// the memo service publishes to.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		logger.Warn("notification worker disabled")
		return
	}
	notificationService.RegisterHandlers()
	logger.Info("notification worker started")
}
