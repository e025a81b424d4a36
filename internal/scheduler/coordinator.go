// Package scheduler owns all scheduling state transitions. Every mutation
// (create, edit, delete, toggle, firing delivery, action processing) funnels
// through one goroutine, so a user edit can never race an in-flight firing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ylchen87/PillTrack/internal/models"
	"github.com/ylchen87/PillTrack/internal/notify"
	"github.com/ylchen87/PillTrack/internal/repository"
	"github.com/ylchen87/PillTrack/internal/schedule"
	"github.com/ylchen87/PillTrack/internal/wakeup"
)

// ErrStaleAction means an action arrived for a reminder that was deleted or
// disabled between the firing and the user's response. Non-fatal: the
// processor drops the reschedule and moves on.
var ErrStaleAction = errors.New("stale action")

// ErrNotFound is the store's sentinel, re-exported for API callers.
var ErrNotFound = repository.ErrNotFound

// ReminderStore is the persistence contract the coordinator consumes.
type ReminderStore interface {
	Create(ctx context.Context, r *models.Reminder) error
	Update(ctx context.Context, r *models.Reminder) error
	Delete(ctx context.Context, id, ownerID int64) error
	GetByID(ctx context.Context, id int64) (*models.Reminder, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Reminder, error)
	ListEnabled(ctx context.Context) ([]*models.Reminder, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// HistoryStore is the append-only audit log contract.
type HistoryStore interface {
	Append(ctx context.Context, h *models.ReminderHistory) error
	ListByOwner(ctx context.Context, ownerID int64, from, to time.Time) ([]*models.ReminderHistory, error)
	CountByOwner(ctx context.Context, ownerID int64, from, to time.Time) (taken, total int, err error)
	PurgeByOwner(ctx context.Context, ownerID int64) error
}

// Coordinator is the serialized executor for all scheduling mutations.
type Coordinator struct {
	clk       clock.Clock
	reminders ReminderStore
	history   HistoryStore
	wake      *wakeup.Scheduler
	presenter notify.Presenter

	cmdCh chan command

	// processedFires dedupes duplicate delivery of the same action token.
	// Only touched from the Run goroutine.
	processedFires map[string]struct{}
}

type command struct {
	fn    func(ctx context.Context) error
	errCh chan error
}

func New(clk clock.Clock, reminders ReminderStore, history HistoryStore, wake *wakeup.Scheduler, presenter notify.Presenter) *Coordinator {
	return &Coordinator{
		clk:            clk,
		reminders:      reminders,
		history:        history,
		wake:           wake,
		presenter:      presenter,
		cmdCh:          make(chan command),
		processedFires: make(map[string]struct{}),
	}
}

// Run drains commands and wake-up firings until ctx is cancelled. Firing
// delivery and action processing share this goroutine, so a fire always
// happens-before its action is processed.
func (c *Coordinator) Run(ctx context.Context) {
	log.Println("Scheduler coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler coordinator stopped")
			return
		case cmd := <-c.cmdCh:
			cmd.errCh <- cmd.fn(ctx)
		case firing := <-c.wake.Fired():
			c.handleFiring(ctx, firing)
		}
	}
}

// do runs fn on the coordinator goroutine and waits for its result.
func (c *Coordinator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, errCh: make(chan error, 1)}
	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateReminder validates, persists and (if enabled) arms a new reminder.
func (c *Coordinator) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.reminders.Create(ctx, r); err != nil {
			return err
		}
		if r.Enabled {
			c.armAll(ctx, r)
		}
		return nil
	})
}

// EditReminder replaces a reminder's definition. Old wake-ups are cancelled
// and new ones armed as one logical transaction: if the store update fails,
// the prior registrations are restored.
func (c *Coordinator) EditReminder(ctx context.Context, r *models.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return c.do(ctx, func(ctx context.Context) error {
		prior, err := c.reminders.GetByID(ctx, r.ID)
		if err != nil {
			return err
		}
		c.disarmAll(ctx, r.ID)
		if err := c.reminders.Update(ctx, r); err != nil {
			if prior.Enabled {
				c.armAll(ctx, prior)
			}
			return err
		}
		if r.Enabled {
			c.armAll(ctx, r)
		}
		return nil
	})
}

// DeleteReminder cancels all wake-ups for the reminder, then removes the
// record. History rows are retained for the audit trail; PurgeHistory
// removes them explicitly.
func (c *Coordinator) DeleteReminder(ctx context.Context, id, ownerID int64) error {
	return c.do(ctx, func(ctx context.Context) error {
		prior, err := c.reminders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		c.disarmAll(ctx, id)
		if err := c.reminders.Delete(ctx, id, ownerID); err != nil {
			if prior.Enabled {
				c.armAll(ctx, prior)
			}
			return err
		}
		return nil
	})
}

// SetEnabled toggles a reminder. Disabling cancels every outstanding wake-up
// before the store change commits, so a stale wake-up can never fire for a
// disabled reminder.
func (c *Coordinator) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return c.do(ctx, func(ctx context.Context) error {
		r, err := c.reminders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		// Validate() only guards the create/edit paths; a reminder created
		// disabled with no dose slots must not be enableable either.
		if enabled && len(r.Times) == 0 {
			return &models.ValidationError{Field: "times", Reason: "must not be empty while enabled"}
		}
		if !enabled {
			c.disarmAll(ctx, id)
		}
		if err := c.reminders.SetEnabled(ctx, id, enabled); err != nil {
			if !enabled && r.Enabled {
				c.armAll(ctx, r)
			}
			return err
		}
		if enabled {
			r.Enabled = true
			c.armAll(ctx, r)
		}
		return nil
	})
}

// ProcessAction runs the per-firing state machine for one user action.
func (c *Coordinator) ProcessAction(ctx context.Context, token notify.ActionToken) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.processAction(ctx, token)
	})
}

// OnRestart reloads every enabled reminder and re-arms it. Registration is
// idempotent, so invoking this twice never duplicates wake-ups. Per-reminder
// failures are logged and skipped.
func (c *Coordinator) OnRestart(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		reminders, err := c.reminders.ListEnabled(ctx)
		if err != nil {
			return fmt.Errorf("load enabled reminders: %w", err)
		}
		for _, r := range reminders {
			c.armAll(ctx, r)
		}
		log.Printf("Recovery pass re-armed %d reminders", len(reminders))
		return nil
	})
}

// GetAdherence summarizes logged actions for an owner over the last
// windowDays days. Read-only, so it bypasses the command queue.
func (c *Coordinator) GetAdherence(ctx context.Context, ownerID int64, windowDays int) (models.Adherence, error) {
	now := c.clk.Now()
	from := now.AddDate(0, 0, -windowDays)
	taken, total, err := c.history.CountByOwner(ctx, ownerID, from, now)
	if err != nil {
		return models.Adherence{}, err
	}
	adherence := models.Adherence{TakenCount: taken, TotalCount: total}
	if total > 0 {
		adherence.Percentage = int(math.Round(100 * float64(taken) / float64(total)))
	}
	return adherence, nil
}

// GetReminder, ListReminders, ListHistory and PurgeHistory are read-side
// passthroughs for the UI layer.

func (c *Coordinator) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	r, err := c.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Coordinator) ListReminders(ctx context.Context, ownerID int64) ([]*models.Reminder, error) {
	return c.reminders.ListByOwner(ctx, ownerID)
}

func (c *Coordinator) ListHistory(ctx context.Context, ownerID int64, from, to time.Time) ([]*models.ReminderHistory, error) {
	return c.history.ListByOwner(ctx, ownerID, from, to)
}

func (c *Coordinator) PurgeHistory(ctx context.Context, ownerID int64) error {
	return c.history.PurgeByOwner(ctx, ownerID)
}

// processAction: FIRED -> {TAKEN | SKIPPED | SNOOZED}, then the scheduling
// side effect. Runs on the coordinator goroutine.
func (c *Coordinator) processAction(ctx context.Context, token notify.ActionToken) error {
	if _, dup := c.processedFires[token.FireID]; dup {
		log.Printf("Dropping duplicate action delivery for firing %s", token.FireID)
		return nil
	}

	r, err := c.reminders.GetByID(ctx, token.Key.ReminderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.markProcessed(token.FireID)
			if derr := c.presenter.Dismiss(ctx, token.Key); derr != nil {
				log.Printf("Failed to dismiss alert %s: %v", token.Key, derr)
			}
			return fmt.Errorf("%w: reminder %d no longer exists", ErrStaleAction, token.Key.ReminderID)
		}
		return fmt.Errorf("load reminder %d: %w", token.Key.ReminderID, err)
	}
	if !r.Enabled {
		c.markProcessed(token.FireID)
		if derr := c.presenter.Dismiss(ctx, token.Key); derr != nil {
			log.Printf("Failed to dismiss alert %s: %v", token.Key, derr)
		}
		return fmt.Errorf("%w: reminder %d is disabled", ErrStaleAction, token.Key.ReminderID)
	}

	c.markProcessed(token.FireID)
	now := c.clk.Now()

	entry := &models.ReminderHistory{
		ReminderID:   r.ID,
		OwnerID:      r.OwnerID,
		MedicineName: r.MedicineName,
		Action:       token.Action,
		ActionTime:   now,
	}
	if token.Action != models.ActionSnoozed {
		scheduled := token.ScheduledTime
		entry.ScheduledTime = &scheduled
	}
	if err := c.history.Append(ctx, entry); err != nil {
		// Background path: log and keep going so the slot still re-arms.
		log.Printf("Failed to append history for reminder %d: %v", r.ID, err)
	}

	if err := c.presenter.Dismiss(ctx, token.Key); err != nil {
		log.Printf("Failed to dismiss alert %s: %v", token.Key, err)
	}

	switch token.Action {
	case models.ActionTaken, models.ActionSkipped:
		// Reference one tick past the slot time to force the roll to the
		// next valid day, even if the action arrives before the slot time.
		next, err := schedule.NextOccurrenceForSlot(r, token.Key.SlotIndex, token.ScheduledTime.Add(time.Second))
		if err != nil {
			if errors.Is(err, schedule.ErrNoValidOccurrence) {
				log.Printf("Reminder %d slot %d has no further occurrence, leaving unscheduled", r.ID, token.Key.SlotIndex)
				return nil
			}
			return fmt.Errorf("compute next occurrence for reminder %d: %w", r.ID, err)
		}
		c.register(r, token.Key.SlotIndex, next)
	case models.ActionSnoozed:
		// Snooze keeps the original scheduled time: the eventual Taken or
		// Skip still answers for the same calendar occurrence.
		at := now.Add(time.Duration(r.SnoozeMinutes) * time.Minute)
		c.registerSnoozed(r, token.Key.SlotIndex, at, token.ScheduledTime)
	default:
		return fmt.Errorf("unknown action %q", token.Action)
	}
	return nil
}

func (c *Coordinator) markProcessed(fireID string) {
	// Bounded memory: the set only needs to cover recent firings, anything
	// older can't be redelivered by the platform.
	if len(c.processedFires) > 4096 {
		c.processedFires = make(map[string]struct{})
	}
	c.processedFires[fireID] = struct{}{}
}

// handleFiring renders the alert for an elapsed wake-up.
func (c *Coordinator) handleFiring(ctx context.Context, firing wakeup.Firing) {
	p := firing.Payload

	title := fmt.Sprintf("Time to take %s", p.MedicineName)
	if p.IsSnoozed {
		title = "(Snoozed) " + title
	}
	body := fmt.Sprintf("Dose: %s\nScheduled for %s", p.Dose, p.ScheduledTime.Format("15:04"))

	base := notify.ActionToken{
		Key:           p.Key,
		FireID:        p.FireID,
		OwnerID:       p.OwnerID,
		MedicineName:  p.MedicineName,
		Dose:          p.Dose,
		ScheduledTime: p.ScheduledTime,
		SnoozeMinutes: p.SnoozeMinutes,
	}
	taken, skipped, snoozed := base, base, base
	taken.Action = models.ActionTaken
	skipped.Action = models.ActionSkipped
	snoozed.Action = models.ActionSnoozed

	alert := notify.Alert{
		Key:     p.Key,
		OwnerID: p.OwnerID,
		Title:   title,
		Body:    body,
		Buttons: []notify.Button{
			{Label: "Taken", Token: taken},
			{Label: fmt.Sprintf("Snooze %d min", p.SnoozeMinutes), Token: snoozed},
			{Label: "Skip", Token: skipped},
		},
	}
	if err := c.presenter.Present(ctx, alert); err != nil {
		log.Printf("Failed to present alert %s: %v", p.Key, err)
	}
}

// armAll computes next occurrences and registers a wake-up per slot.
// Failures are scheduling failures, not caller errors: the reminder stays
// enabled and the next recovery pass retries.
func (c *Coordinator) armAll(ctx context.Context, r *models.Reminder) {
	occs, err := schedule.NextOccurrences(r, c.clk.Now())
	if err != nil {
		if errors.Is(err, schedule.ErrNoValidOccurrence) {
			log.Printf("Reminder %d has no valid occurrence, leaving enabled but unscheduled", r.ID)
		} else {
			log.Printf("Failed to compute occurrences for reminder %d: %v", r.ID, err)
		}
		return
	}
	for _, occ := range occs {
		c.register(r, occ.SlotIndex, occ.At)
	}
}

func (c *Coordinator) register(r *models.Reminder, slot int, at time.Time) {
	key := wakeup.Key{ReminderID: r.ID, SlotIndex: slot}
	_, err := c.wake.Register(key, at, wakeup.Payload{
		OwnerID:       r.OwnerID,
		MedicineName:  r.MedicineName,
		Dose:          r.Dose,
		ScheduledTime: at,
		SnoozeMinutes: r.SnoozeMinutes,
	})
	if err != nil {
		log.Printf("Failed to register wake-up %s: %v", key, err)
	}
}

func (c *Coordinator) registerSnoozed(r *models.Reminder, slot int, at, scheduled time.Time) {
	key := wakeup.Key{ReminderID: r.ID, SlotIndex: slot}
	_, err := c.wake.Register(key, at, wakeup.Payload{
		OwnerID:       r.OwnerID,
		MedicineName:  r.MedicineName,
		Dose:          r.Dose,
		ScheduledTime: scheduled,
		SnoozeMinutes: r.SnoozeMinutes,
		IsSnoozed:     true,
	})
	if err != nil {
		log.Printf("Failed to register snoozed wake-up %s: %v", key, err)
	}
}

// disarmAll cancels every wake-up and dismisses every alert for a reminder.
func (c *Coordinator) disarmAll(ctx context.Context, reminderID int64) {
	c.wake.CancelAll(reminderID)
	for slot := 0; slot < wakeup.MaxSlots; slot++ {
		key := wakeup.Key{ReminderID: reminderID, SlotIndex: slot}
		if err := c.presenter.Dismiss(ctx, key); err != nil {
			log.Printf("Failed to dismiss alert %s: %v", key, err)
		}
	}
}
