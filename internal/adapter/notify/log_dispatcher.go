package notify

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

// LogDispatcher only logs status changes. Used when notifications.driver is none.
type LogDispatcher struct {
	logger logger.Logger
}

func NewLogDispatcher(logger logger.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) PublishStatusChanged(_ context.Context, evt interfaces.StatusChangedEvent) error {
	d.logger.Debug("notification_skipped", fmt.Sprintf("Case %s is now %s", evt.CaseNumber, evt.ToStatus), evt.CaseID, map[string]interface{}{
		"kind":       evt.Kind,
		"actor_role": evt.ActorRole,
	})
	return nil
}
