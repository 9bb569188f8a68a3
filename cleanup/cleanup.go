// Package cleanup runs the background sweep that expires response sessions
// abandoned without activity for longer than the inactivity timeout.
package cleanup

import (
	"fmt"
	"log"
	"sync"
	"time"

	"formkeeper/db"
	"formkeeper/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Defaults used when the service is constructed with zero values.
const (
	DefaultSessionTimeout = 24 * time.Hour
	DefaultSweepInterval  = time.Hour
	DefaultBatchSize      = 100
)

// Stats describes the sweep history for operators.
type Stats struct {
	Running      bool      `json:"running"`
	Sweeps       int       `json:"sweeps"`
	TotalExpired int       `json:"total_expired"`
	LastSweepAt  time.Time `json:"last_sweep_at,omitempty"`
	LastExpired  int       `json:"last_expired"`
	Failures     int       `json:"failures"`
}

// Service expires stale in-progress sessions. One instance per process;
// Start runs one sweep immediately and then schedules recurring sweeps.
// Starting an already-running service is a no-op. The service must not be
// started before the backend connection is confirmed ready.
type Service struct {
	store     db.Store
	timeout   time.Duration
	interval  time.Duration
	batchSize int

	mu         sync.Mutex
	running    bool
	stats      Stats
	dispatcher *cron.Cron
	wg         sync.WaitGroup // tracks the immediate sweep from Start

	now func() time.Time // test seam for the inactivity cutoff
}

// NewService creates a cleanup service. Zero parameters fall back to the
// package defaults.
func NewService(store db.Store, timeout, interval time.Duration, batchSize int) *Service {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		store:     store,
		timeout:   timeout,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Start launches the recurring sweep. The first sweep runs immediately in
// the background.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stats.Running = true

	dispatcher := cron.New(
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	if _, err := dispatcher.AddFunc(fmt.Sprintf("@every %s", s.interval), s.runSweep); err != nil {
		log.Printf("❌ Failed to schedule session cleanup: %v", err)
	}
	s.dispatcher = dispatcher
	s.mu.Unlock()

	dispatcher.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSweep()
	}()

	log.Printf("🧹 Session cleanup started (timeout: %v, interval: %v, batch: %d)", s.timeout, s.interval, s.batchSize)
}

// Stop cancels the recurring sweep and waits for an in-flight run to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stats.Running = false
	dispatcher := s.dispatcher
	s.dispatcher = nil
	s.mu.Unlock()

	if dispatcher != nil {
		ctx := dispatcher.Stop()
		<-ctx.Done()
	}
	s.wg.Wait()
	log.Println("🧹 Session cleanup stopped")
}

// ManualCleanup runs one sweep synchronously and returns the number of
// sessions expired, for operator-triggered or test-driven invocation.
func (s *Service) ManualCleanup() (int, error) {
	expired, err := s.sweep()
	s.recordSweep(expired, err)
	return expired, err
}

// GetStats returns a snapshot of the sweep history.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// runSweep is the scheduled entry point. Failures are logged and swallowed
// so the timer keeps running indefinitely.
func (s *Service) runSweep() {
	expired, err := s.sweep()
	s.recordSweep(expired, err)
	if err != nil {
		log.Printf("⚠️  Session cleanup sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("🧹 Session cleanup expired %d session(s)", expired)
	}
}

func (s *Service) recordSweep(expired int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Sweeps++
	s.stats.LastSweepAt = s.now()
	s.stats.LastExpired = expired
	s.stats.TotalExpired += expired
	if err != nil {
		s.stats.Failures++
	}
}

// sweep fetches all sessions, keeps the non-terminal ones whose latest
// activity predates the cutoff, and expires them in fixed-size batches of
// concurrent best-effort updates. One session's failure never blocks its
// siblings.
func (s *Service) sweep() (int, error) {
	sessions, err := s.store.GetAllSessions()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	now := s.now()
	cutoff := now.Add(-s.timeout)

	var stale []models.Session
	for _, sess := range sessions {
		if sess.Status.Terminal() {
			continue
		}
		if sess.LastTouched().Before(cutoff) {
			stale = append(stale, sess)
		}
	}

	expired := 0
	var countMu sync.Mutex

	for start := 0; start < len(stale); start += s.batchSize {
		end := start + s.batchSize
		if end > len(stale) {
			end = len(stale)
		}

		var wg sync.WaitGroup
		for _, sess := range stale[start:end] {
			wg.Add(1)
			go func(sess models.Session) {
				defer wg.Done()
				if err := s.expire(&sess, now); err != nil {
					log.Printf("⚠️  Failed to expire session %s: %v", sess.SessionID, err)
					return
				}
				countMu.Lock()
				expired++
				countMu.Unlock()
			}(sess)
		}
		wg.Wait()
	}

	return expired, nil
}

// expire marks one session expired and appends the audit note recording the
// transition.
func (s *Service) expire(sess *models.Session, now time.Time) error {
	previous := sess.Status
	sess.Status = models.SessionExpired
	sess.LastActivityAt = now
	sess.Metadata.Notes = append(sess.Metadata.Notes, models.AuditNote{
		NoteID:         uuid.NewString(),
		PreviousStatus: string(previous),
		Reason:         fmt.Sprintf("expired after %v of inactivity", s.timeout),
		Timestamp:      now,
	})
	sess.Metadata.Touch()
	return s.store.UpdateSession(sess)
}
