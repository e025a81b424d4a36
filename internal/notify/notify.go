// Package notify is the alert surface. An alert is keyed by the same
// (reminderID, slotIndex) composite as its wake-up, so re-firing a key
// replaces the previous alert instead of stacking a new one.
package notify

import (
	"context"

	"github.com/ylchen87/PillTrack/internal/wakeup"
)

// Alert is one presented reminder with its three action affordances.
type Alert struct {
	Key     wakeup.Key
	OwnerID int64
	Title   string
	Body    string
	Buttons []Button
}

// Button binds a label to the action token delivered when pressed.
type Button struct {
	Label string
	Token ActionToken
}

// Presenter renders alerts and collects the user's response.
type Presenter interface {
	// Present shows the alert, replacing any previous alert for the same key.
	Present(ctx context.Context, alert Alert) error
	// Dismiss removes the alert for key. Unknown keys are a no-op.
	Dismiss(ctx context.Context, key wakeup.Key) error
}
