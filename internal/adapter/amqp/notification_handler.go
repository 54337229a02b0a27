package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

type NotificationHandler struct {
	logger logger.Logger
	out    io.Writer
}

func NewNotificationHandler(logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		logger: logger,
		out:    os.Stdout,
	}
}

func (h *NotificationHandler) HandleNotification(ctx context.Context, body []byte) error {
	var evt interfaces.StatusChangedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse notification", "", nil, err)
		return err
	}

	h.logger.Debug("notification_received", fmt.Sprintf("Received status update for case %s", evt.CaseNumber),
		evt.CaseID, map[string]interface{}{
			"case_number": evt.CaseNumber,
			"to_status":   evt.ToStatus,
			"kind":        evt.Kind,
		})

	from := "none"
	if evt.FromStatus != nil {
		from = string(*evt.FromStatus)
	}
	fmt.Fprintf(h.out, "Notification for case %s: Status changed from '%s' to '%s' by %s (%s)\n",
		evt.CaseNumber, from, evt.ToStatus, evt.ActorRole, evt.Kind)

	return nil
}
