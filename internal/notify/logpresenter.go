package notify

import (
	"context"
	"log"

	"github.com/ylchen87/PillTrack/internal/wakeup"
)

// LogPresenter writes alerts to the process log. Used when no delivery
// channel is configured, so the scheduler keeps running headless.
type LogPresenter struct{}

func (LogPresenter) Present(ctx context.Context, alert Alert) error {
	log.Printf("Alert %s for owner %d: %s", alert.Key, alert.OwnerID, alert.Title)
	return nil
}

func (LogPresenter) Dismiss(ctx context.Context, key wakeup.Key) error {
	log.Printf("Dismiss alert %s", key)
	return nil
}
