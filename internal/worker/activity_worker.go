package worker

import (
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// StartActivityWorker registers the activity log handlers on the event dispatcher.
func StartActivityWorker(activity *service.ActivityLogService) {
	if activity == nil {
		return
	}
	activity.RegisterHandlers()
}
