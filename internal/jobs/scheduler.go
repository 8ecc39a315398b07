package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler fires one-shot jobs at the next occurrence of a wall-clock time.
// Each job runs once and then removes itself.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	now     func() time.Time
	loc     *time.Location
}

// NewScheduler creates a scheduler using the local time zone.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		now:    time.Now,
		loc:    time.Local,
	}
}

// ParseTimeOfDay parses a 24-hour "HH:MM" value.
func ParseTimeOfDay(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil || len(value) != 5 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSchedule, value)
	}
	return t.Hour(), t.Minute(), nil
}

// NextOccurrence returns today's hour:minute if it is still ahead of now,
// otherwise tomorrow's.
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Schedule registers fn to run once at the next at ("HH:MM"), replacing any
// pending job with the same name. It returns the time the job will fire.
func (s *Scheduler) Schedule(name, at string, fn func()) (time.Time, error) {
	hour, minute, err := ParseTimeOfDay(at)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return time.Time{}, fmt.Errorf("scheduler stopped")
	}

	now := s.now().In(s.loc)
	fireAt := NextOccurrence(now, hour, minute)

	if existing, ok := s.timers[name]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(fireAt.Sub(now), func() {
		s.mu.Lock()
		// Replaced or cancelled while firing
		if s.timers[name] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, name)
		s.mu.Unlock()

		log.Info().Str("knowledge_base", name).Msg("Scheduled run starting")
		fn()
	})
	s.timers[name] = timer

	log.Info().
		Str("knowledge_base", name).
		Str("at", at).
		Time("fire_at", fireAt).
		Msg("Run scheduled")

	return fireAt, nil
}

// Cancel removes a pending job, reporting whether one existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[name]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, name)
	return true
}

// Pending lists the names with a job still waiting to fire.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels every pending job. Later Schedule calls fail.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, timer := range s.timers {
		timer.Stop()
		delete(s.timers, name)
	}
	s.stopped = true
}
