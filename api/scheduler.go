/*
scheduler.go - Automated session close scheduler

PURPOSE:
  Periodically checks for count sessions left open past their maximum
  age and closes them automatically. Auto-closed sessions get their
  adjustments tagged with the session-expired reason so reports can
  separate forced closes from deliberate reconciliations.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Detects sessions whose started_ts is older than MaxAge
  - Delegates the close to the session service, which bypasses the
    variance reason gate for expired sessions

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - MaxAge:        How long a session may stay open (default: 24 hours)

USAGE:
  scheduler := NewAutoCloseScheduler(sessions, store, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - session/service.go: AutoClose
  - handlers.go: CloseSession endpoint (manual reconciliation)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LesCam/barstock/session"
)

// AutoCloseScheduler force-closes count sessions left open too long.
type AutoCloseScheduler struct {
	Sessions      *session.Service
	Store         session.Store
	CheckInterval time.Duration
	MaxAge        time.Duration
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAutoCloseScheduler creates a scheduler with default timing.
func NewAutoCloseScheduler(sessions *session.Service, store session.Store, log zerolog.Logger) *AutoCloseScheduler {
	return &AutoCloseScheduler{
		Sessions:      sessions,
		Store:         store,
		CheckInterval: 15 * time.Minute,
		MaxAge:        24 * time.Hour,
		Log:           log,
	}
}

// Start begins the scheduler.
func (s *AutoCloseScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Log.Info().
		Dur("interval", s.CheckInterval).
		Dur("max_age", s.MaxAge).
		Msg("auto-close scheduler started")
}

// Stop stops the scheduler and waits for any in-flight sweep.
func (s *AutoCloseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Log.Info().Msg("auto-close scheduler stopped")
}

func (s *AutoCloseScheduler) run() {
	defer s.wg.Done()

	// Sweep immediately on start
	s.Sweep(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.Sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Sweep closes every session open longer than MaxAge. Exported so the
// sweep can be triggered directly in tests and admin tooling.
func (s *AutoCloseScheduler) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.MaxAge)

	stale, err := s.Store.ListOpenBefore(ctx, cutoff)
	if err != nil {
		s.Log.Error().Err(err).Msg("listing stale sessions")
		return
	}

	for _, sess := range stale {
		result, err := s.Sessions.AutoClose(ctx, sess.ID)
		if err != nil {
			s.Log.Error().Err(err).
				Str("session_id", string(sess.ID)).
				Msg("auto-closing session")
			continue
		}
		s.Log.Info().
			Str("session_id", string(sess.ID)).
			Str("location_id", string(sess.LocationID)).
			Int("adjustments", result.AdjustmentsCreated).
			Msg("auto-closed expired session")
	}
}
