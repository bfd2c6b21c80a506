package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/schedule"
	"github.com/arrosemoi-app/server/internal/store"
)

const (
	// DefaultNotifyHour is the local hour the daily digest goes out.
	DefaultNotifyHour = 8

	// scanInterval is how often the scheduler wakes up. Combined with the
	// notify-hour guard this yields one send window per day, at most one
	// tick wide.
	scanInterval = 30 * time.Minute

	// DigestTag identifies daily-digest notifications so the client can
	// collapse successive days into one.
	DigestTag = "arrosemoi-daily"

	digestURL = "/reminders"
)

// Scheduler runs the daily reminder scan: every tick it checks whether the
// notify hour has arrived and, if so, sends one deduplicated digest per
// subscription summarizing the user's due plants.
type Scheduler struct {
	mu         sync.RWMutex
	sender     Sender
	push       *store.PushStore
	plants     *store.PlantStore
	notifyHour int
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewScheduler creates a reminder scheduler. A negative notifyHour means
// unset and falls back to DefaultNotifyHour; 0 is a valid midnight window.
func NewScheduler(sender Sender, pushStore *store.PushStore, plantStore *store.PlantStore, notifyHour int, logger *slog.Logger) *Scheduler {
	if notifyHour < 0 {
		notifyHour = DefaultNotifyHour
	}
	return &Scheduler{
		sender:     sender,
		push:       pushStore,
		plants:     plantStore,
		notifyHour: notifyHour,
		logger:     logger,
	}
}

// Start begins the scan loop. The first scan runs immediately so a restart
// inside the notify window does not lose the day's digest.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()

		s.Scan(time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Scan(time.Now())
			}
		}
	}()
}

// Stop gracefully stops the scheduler, waiting for an in-flight scan.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Scan performs one scan-and-notify pass for the given wall-clock time.
// Outside the notify hour it is a no-op. The pass is idempotent within a
// calendar day: subscriptions already notified today are excluded from the
// candidate set, so repeated scans inside the window cannot double-send.
//
// Dispatches run concurrently, one goroutine per subscription; Scan waits
// for all outcomes before returning. Errors are logged per subscription
// and never propagate: one dead endpoint must not cost anyone else their
// digest.
func (s *Scheduler) Scan(now time.Time) {
	if now.Hour() != s.notifyHour {
		return
	}
	today := now.Format("2006-01-02")

	candidates, err := s.push.ListDigestCandidates(today)
	if err != nil {
		s.logger.Error("list digest candidates", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	byUser := make(map[int64][]model.PushSubscription)
	for _, sub := range candidates {
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
	}

	var wg sync.WaitGroup
	for userID, subs := range byUser {
		payload, ok := s.composeDigest(userID, now)
		if !ok {
			continue
		}
		for _, sub := range subs {
			wg.Add(1)
			go func(sub model.PushSubscription) {
				defer wg.Done()
				s.dispatch(sub, payload, today)
			}(sub)
		}
	}
	wg.Wait()
}

// composeDigest builds the user's digest payload. ok is false when the
// user has nothing due, in which case no notification is sent and no state
// changes.
func (s *Scheduler) composeDigest(userID int64, now time.Time) (Payload, bool) {
	plants, err := s.plants.ListVisibleToUser(userID)
	if err != nil {
		s.logger.Error("list plants for digest", "user_id", userID, "error", err)
		return Payload{}, false
	}

	var water, repot, fertilize int
	for _, p := range plants {
		if schedule.WateringDue(p, now) {
			water++
		}
		if schedule.RepottingDue(p, now) {
			repot++
		}
		if schedule.FertilizingDue(p, now) {
			fertilize++
		}
	}

	total := water + repot + fertilize
	if total == 0 {
		return Payload{}, false
	}

	var parts []string
	if water > 0 {
		parts = append(parts, fmt.Sprintf("%d à arroser", water))
	}
	if repot > 0 {
		parts = append(parts, fmt.Sprintf("%d à rempoter", repot))
	}
	if fertilize > 0 {
		parts = append(parts, fmt.Sprintf("%d à fertiliser", fertilize))
	}

	return Payload{
		Title: fmt.Sprintf("%d plante(s) ont besoin de toi", total),
		Body:  strings.Join(parts, " • "),
		Tag:   DigestTag,
		URL:   digestURL,
	}, true
}

// dispatch sends one digest and records the outcome. The notified mark is
// written only after the push service acknowledged the send.
func (s *Scheduler) dispatch(sub model.PushSubscription, payload Payload, today string) {
	err := s.sender.Send(&sub, payload)
	if err == nil {
		if err := s.push.MarkNotified(sub.ID, today); err != nil {
			s.logger.Error("mark notified", "subscription_id", sub.ID, "error", err)
		}
		return
	}

	if errors.Is(err, ErrExpired) {
		if err := s.push.DeleteByEndpoint(sub.Endpoint); err != nil {
			s.logger.Error("delete expired subscription", "subscription_id", sub.ID, "error", err)
			return
		}
		s.logger.Info("removed expired subscription", "subscription_id", sub.ID)
		return
	}

	// Transient failure: leave the row untouched. The candidate filter
	// re-admits it tomorrow; there is no same-day retry.
	s.logger.Error("send digest", "subscription_id", sub.ID, "error", err)
}
