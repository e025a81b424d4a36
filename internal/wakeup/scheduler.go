// Package wakeup is the in-process timed wake-up primitive. Registrations
// are keyed by (reminderID, slotIndex) and replaced atomically, so a slot
// never has more than one outstanding timer. Timers live only in memory;
// the recovery pass re-derives them after a restart.
package wakeup

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ylchen87/PillTrack/internal/models"
)

// MaxSlots is the fixed multiplier for token derivation. It bounds slot
// indices so a token can be reversed without enumerating external state.
// Derived from the validation cap on dose times: every slot index a valid
// reminder can produce must be registrable, and vice versa.
const MaxSlots = models.MaxTimes

// Key identifies one schedulable dose slot.
type Key struct {
	ReminderID int64
	SlotIndex  int
}

// Token derives the deterministic integer identity used by the platform
// timer layer: reminderID*MaxSlots+slotIndex.
func (k Key) Token() int64 {
	return k.ReminderID*MaxSlots + int64(k.SlotIndex)
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.ReminderID, k.SlotIndex)
}

// Payload travels with a registration and comes back in the firing event.
type Payload struct {
	Key           Key
	FireID        string // unique per registration, dedupes duplicate action delivery
	OwnerID       int64
	MedicineName  string
	Dose          string
	ScheduledTime time.Time // the calendar occurrence this firing answers for
	SnoozeMinutes int
	IsSnoozed     bool
}

// Firing is delivered on the Fired channel when a timer elapses.
type Firing struct {
	Payload Payload
	FiredAt time.Time
}

type registration struct {
	payload Payload
	at      time.Time
	timer   *clock.Timer
}

// Scheduler owns the timer registry. All methods are safe for concurrent
// use, though in practice the coordinator is the only caller.
type Scheduler struct {
	clk     clock.Clock
	firedCh chan Firing
	fireSeq atomic.Int64

	mu     sync.Mutex
	timers map[int64]*registration
}

func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clk:     clk,
		firedCh: make(chan Firing, 64),
		timers:  make(map[int64]*registration),
	}
}

// Fired returns the channel on which elapsed wake-ups are delivered.
func (s *Scheduler) Fired() <-chan Firing {
	return s.firedCh
}

// Register arms a wake-up for key at the given instant. An existing
// registration for the same key is cancelled first, never duplicated.
// The payload is stamped with a fresh FireID, which is returned.
func (s *Scheduler) Register(key Key, at time.Time, p Payload) (string, error) {
	if key.SlotIndex < 0 || key.SlotIndex >= MaxSlots {
		return "", fmt.Errorf("slot index %d out of range [0,%d)", key.SlotIndex, MaxSlots)
	}
	p.Key = key
	p.FireID = fmt.Sprintf("%d-%d-%d", key.Token(), at.UnixMilli(), s.fireSeq.Add(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	token := key.Token()
	if old, ok := s.timers[token]; ok {
		old.timer.Stop()
		delete(s.timers, token)
	}

	reg := &registration{payload: p, at: at}
	d := at.Sub(s.clk.Now())
	if d < 0 {
		d = 0
	}
	reg.timer = s.clk.AfterFunc(d, func() {
		s.fire(token)
	})
	s.timers[token] = reg
	return p.FireID, nil
}

func (s *Scheduler) fire(token int64) {
	s.mu.Lock()
	reg, ok := s.timers[token]
	if ok {
		delete(s.timers, token)
	}
	s.mu.Unlock()
	if !ok {
		// Cancelled between elapse and callback.
		return
	}
	select {
	case s.firedCh <- Firing{Payload: reg.payload, FiredAt: s.clk.Now()}:
	default:
		// Nobody is draining, e.g. the coordinator already stopped at
		// shutdown. A timer callback must never block; the recovery pass
		// re-derives anything dropped here.
		log.Printf("Dropping firing %s, fired channel is not being drained", reg.payload.Key)
	}
}

// Cancel removes any pending wake-up for key. Cancelling an unknown key is
// a no-op.
func (s *Scheduler) Cancel(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.timers[key.Token()]; ok {
		reg.timer.Stop()
		delete(s.timers, key.Token())
	}
}

// CancelAll removes pending wake-ups for every slot of a reminder.
func (s *Scheduler) CancelAll(reminderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot := 0; slot < MaxSlots; slot++ {
		token := Key{ReminderID: reminderID, SlotIndex: slot}.Token()
		if reg, ok := s.timers[token]; ok {
			reg.timer.Stop()
			delete(s.timers, token)
		}
	}
}

// Pending reports the armed instant for key, if any.
func (s *Scheduler) Pending(key Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.timers[key.Token()]
	if !ok {
		return time.Time{}, false
	}
	return reg.at, true
}

// PendingCount reports how many wake-ups are armed for a reminder.
func (s *Scheduler) PendingCount(reminderID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for slot := 0; slot < MaxSlots; slot++ {
		if _, ok := s.timers[Key{ReminderID: reminderID, SlotIndex: slot}.Token()]; ok {
			n++
		}
	}
	return n
}
