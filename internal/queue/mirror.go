package queue

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/sheets"
)

// Submitter delivers one event to the spreadsheet.  *sheets.Client
// implements it.
type Submitter interface {
	Submit(ctx context.Context, e model.Event) sheets.Result
}

// SheetsMirror returns a Handler appending created and updated events to the
// spreadsheet.  The sheet has no delete operation, so deletions are only
// logged.  A failed submission is reported as an error so the delivery is
// rejected; a local recovery is not, since the payload is already kept in
// the recovery log.
func SheetsMirror(sub Submitter, logger *log.Logger) Handler {
	return func(ctx context.Context, ev EventSaved) error {
		switch ev.Action {
		case ActionCreated, ActionUpdated:
		case ActionDeleted:
			logger.Infof("sheets-mirror: event %d deleted by %s; sheet left untouched", ev.EventID, ev.Usuario)
			return nil
		default:
			return fmt.Errorf("unknown action %q", ev.Action)
		}

		res := sub.Submit(ctx, ev.Event)
		logger.Infoj(log.JSON{
			"event_id": ev.EventID,
			"action":   ev.Action,
			"state":    res.State.String(),
			"kind":     res.Kind,
			"message":  res.Message,
		})
		if res.State == sheets.StateFailed {
			return fmt.Errorf("sheets: %s", res.Message)
		}
		return nil
	}
}
