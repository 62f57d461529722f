// Package reminder implements durable one-shot reminders delivered by
// direct message. Reminders survive restarts: every stored reminder is
// re-armed when the module starts.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/gobot/pkg/gobot/clock"
	"github.com/jholhewres/gobot/pkg/gobot/scheduler"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

const uidLength = 8

var (
	// ErrReminderNotFound is returned when the author has no reminder with
	// the given uid.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrTooManyReminders is returned when an author reached the cap.
	ErrTooManyReminders = errors.New("too many reminders")

	// ErrCorruptRecord is returned by ListAll for records it cannot decode.
	ErrCorruptRecord = errors.New("corrupt reminder record")
)

// Reminder is a message to deliver to its author at a given time.
type Reminder struct {
	UID      string `json:"uid"`
	AuthorID string `json:"author_id"`
	Message  string `json:"message"`

	// AtTime is the due time in unix seconds.
	AtTime int64 `json:"at_time"`
}

// DueAt returns the due time.
func (r Reminder) DueAt() time.Time { return time.Unix(r.AtTime, 0) }

// Sender delivers direct messages.
type Sender interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// set is the stored value for one author: uid to reminder.
type set map[string]Reminder

// Scheduler persists reminders and arms a timer for each of them.
type Scheduler struct {
	store      store.Store
	timers     *scheduler.Scheduler
	sender     Sender
	maxPerUser int
	logger     *slog.Logger
}

// NewScheduler creates a reminder scheduler. maxPerUser <= 0 means no cap.
func NewScheduler(st store.Store, sender Sender, clk clock.Clock, maxPerUser int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      st,
		timers:     scheduler.New(clk, logger),
		sender:     sender,
		maxPerUser: maxPerUser,
		logger:     logger,
	}
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time { return s.timers.Clock().Now() }

// New stores a reminder for author and arms it. The returned uid is unique
// among the author's reminders.
func (s *Scheduler) New(ctx context.Context, authorID string, dueAt time.Time, message string) (Reminder, error) {
	var created Reminder
	err := store.UpdateJSON(ctx, s.store, authorID, func(rs *set) error {
		if *rs == nil {
			*rs = set{}
		}
		if s.maxPerUser > 0 && len(*rs) >= s.maxPerUser {
			return fmt.Errorf("%w: limit is %d", ErrTooManyReminders, s.maxPerUser)
		}
		uid := newUID()
		for {
			if _, taken := (*rs)[uid]; !taken {
				break
			}
			uid = newUID()
		}
		created = Reminder{
			UID:      uid,
			AuthorID: authorID,
			Message:  message,
			AtTime:   dueAt.Unix(),
		}
		(*rs)[uid] = created
		return nil
	})
	if err != nil {
		return Reminder{}, err
	}

	if err := s.arm(created); err != nil {
		s.remove(ctx, authorID, created.UID)
		return Reminder{}, err
	}
	s.logger.Info("reminder created", "uid", created.UID, "author", authorID,
		"fires_in", created.DueAt().Sub(s.Now()).String())
	return created, nil
}

// List returns the author's reminders ordered by due time.
func (s *Scheduler) List(ctx context.Context, authorID string) ([]Reminder, error) {
	var rs set
	if _, err := s.store.Get(ctx, authorID, &rs); err != nil {
		return nil, err
	}
	return sorted(rs), nil
}

// Cancel removes one of the author's reminders so it never fires.
func (s *Scheduler) Cancel(ctx context.Context, authorID, uid string) error {
	err := store.UpdateJSON(ctx, s.store, authorID, func(rs *set) error {
		if _, ok := (*rs)[uid]; !ok {
			return fmt.Errorf("%w: %s", ErrReminderNotFound, uid)
		}
		delete(*rs, uid)
		if len(*rs) == 0 {
			return store.ErrDeleteKey
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.timers.Cancel(timerID(authorID, uid))
	s.logger.Info("reminder cancelled", "uid", uid, "author", authorID)
	return nil
}

// Pending returns how many timers are armed.
func (s *Scheduler) Pending() int { return len(s.timers.Pending()) }

// Load arms every stored reminder. Reminders already due fire right away.
func (s *Scheduler) Load(ctx context.Context) (int, error) {
	all, err := ListAll(ctx, s.store)
	if errors.Is(err, ErrCorruptRecord) {
		s.logger.Error("skipping unreadable reminders", "error", err)
	} else if err != nil {
		return 0, err
	}
	n := 0
	for _, rs := range all {
		for _, r := range rs {
			if err := s.arm(r); err != nil {
				if errors.Is(err, scheduler.ErrJobExists) {
					continue
				}
				return n, err
			}
			n++
		}
	}
	s.logger.Info("reminders loaded from storage", "count", n)
	return n, nil
}

// Stop disarms every timer. Stored reminders are kept for the next start.
func (s *Scheduler) Stop(ctx context.Context) {
	s.timers.Stop(ctx)
}

func (s *Scheduler) arm(r Reminder) error {
	return s.timers.At(timerID(r.AuthorID, r.UID), r.DueAt(), func(ctx context.Context) {
		s.fire(ctx, r)
	})
}

// fire delivers the reminder and drops it from the store.
func (s *Scheduler) fire(ctx context.Context, r Reminder) {
	if err := s.sender.SendDirect(ctx, r.AuthorID, "`Reminder` "+r.Message); err != nil {
		s.logger.Error("failed to deliver reminder", "uid", r.UID, "author", r.AuthorID, "error", err)
	} else {
		s.logger.Info("reminder delivered", "uid", r.UID, "author", r.AuthorID)
	}
	s.remove(ctx, r.AuthorID, r.UID)
}

func (s *Scheduler) remove(ctx context.Context, authorID, uid string) {
	err := store.UpdateJSON(ctx, s.store, authorID, func(rs *set) error {
		delete(*rs, uid)
		if len(*rs) == 0 {
			return store.ErrDeleteKey
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to delete reminder", "uid", uid, "author", authorID, "error", err)
	}
}

// ListAll reads every stored reminder, grouped by author. Records that
// cannot be decoded are left out and reported together as ErrCorruptRecord
// alongside the readable ones.
func ListAll(ctx context.Context, st store.Store) (map[string][]Reminder, error) {
	all, err := st.All(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]Reminder, len(all))
	var errs []error
	for author, raw := range all {
		var rs set
		if err := json.Unmarshal(raw, &rs); err != nil {
			errs = append(errs, fmt.Errorf("%w: author %s: %v", ErrCorruptRecord, author, err))
			continue
		}
		result[author] = sorted(rs)
	}
	return result, errors.Join(errs...)
}

func sorted(rs set) []Reminder {
	list := make([]Reminder, 0, len(rs))
	for _, r := range rs {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AtTime == list[j].AtTime {
			return list[i].UID < list[j].UID
		}
		return list[i].AtTime < list[j].AtTime
	})
	return list
}

func newUID() string {
	return uuid.NewString()[:uidLength]
}

func timerID(authorID, uid string) string {
	return authorID + "/" + uid
}
