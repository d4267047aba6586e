package housekeeping

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/common"
)

// jobEntry tracks one registered cron job.
type jobEntry struct {
	name      string
	schedule  string
	entryID   cron.EntryID
	handler   func() error
	lastRun   *time.Time
	lastError string
	isRunning bool
}

// Service wraps robfig/cron to drive the periodic sweeps on a configured
// cadence. globalMu (one mutex rather than per-job, since housekeeping
// only ever registers a handful of jobs) prevents two runs of the same
// sweep from overlapping.
type Service struct {
	cron     *cron.Cron
	logger   arbor.ILogger
	jobMu    sync.Mutex
	globalMu sync.Mutex
	jobs     map[string]*jobEntry
	running  bool
}

// NewService builds a stopped Service. Call RegisterJob for each sweep and
// Start to begin dispatching.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob schedules handler on the given cron expression. Overlapping
// fires of the same job are serialised by globalMu, and a panic inside
// handler is recovered the way common.SafeGo recovers background goroutines
// so one bad sweep cannot take the process down.
func (s *Service) RegisterJob(name, schedule string, handler func() error) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry := &jobEntry{name: name, schedule: schedule, handler: handler}

	entryID, err := s.cron.AddFunc(schedule, func() { s.runJob(entry) })
	if err != nil {
		return err
	}
	entry.entryID = entryID
	s.jobs[name] = entry
	return nil
}

// runJob executes one job's handler with panic recovery and overlap
// protection (globalMu), and records timing/error status on the entry.
func (s *Service) runJob(entry *jobEntry) {
	done := make(chan struct{})
	defer func() { <-done }()
	common.SafeGo(s.logger, entry.name, func() {
		defer close(done)
		s.globalMu.Lock()
		defer s.globalMu.Unlock()

		entry.isRunning = true
		start := time.Now()
		err := entry.handler()
		completed := time.Now()

		entry.isRunning = false
		entry.lastRun = &completed
		if err != nil {
			entry.lastError = err.Error()
			s.logger.Error().Str("job", entry.name).Err(err).Dur("duration", time.Since(start)).Msg("housekeeping sweep failed")
		} else {
			entry.lastError = ""
			s.logger.Debug().Str("job", entry.name).Dur("duration", time.Since(start)).Msg("housekeeping sweep completed")
		}
	})
}

// Start begins dispatching registered jobs.
func (s *Service) Start() {
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("housekeeping scheduler started")
}

// Stop halts the cron dispatcher and waits for any in-flight sweep to
// finish.
func (s *Service) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("housekeeping scheduler stopped")
}

// TriggerNow runs a registered job immediately, outside its schedule, and
// returns once it has finished. It reports false for an unknown job name.
func (s *Service) TriggerNow(name string) bool {
	s.jobMu.Lock()
	entry, ok := s.jobs[name]
	s.jobMu.Unlock()
	if !ok {
		return false
	}
	s.runJob(entry)
	return true
}

// Status reports the last-run time, last error, and running flag for a
// registered job.
func (s *Service) Status(name string) (lastRun *time.Time, lastError string, running bool, ok bool) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	entry, exists := s.jobs[name]
	if !exists {
		return nil, "", false, false
	}
	return entry.lastRun, entry.lastError, entry.isRunning, true
}
