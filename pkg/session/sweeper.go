package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultTranscriptRetention is how long transcripts of inactive
	// sessions are kept on disk.
	DefaultTranscriptRetention = 7 * 24 * time.Hour
)

// Sweeper runs the registry sweep on a fixed schedule and prunes old
// transcripts alongside it.
type Sweeper struct {
	registry    *Registry
	transcripts *TranscriptStore
	interval    time.Duration
	retention   time.Duration
	c           *cron.Cron
}

// NewSweeper creates a sweeper. transcripts may be nil.
func NewSweeper(registry *Registry, transcripts *TranscriptStore, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultTranscriptRetention
	}
	return &Sweeper{
		registry:    registry,
		transcripts: transcripts,
		interval:    interval,
		retention:   retention,
	}
}

// Start schedules the sweep. Returns an error if already started.
func (s *Sweeper) Start() error {
	if s.c != nil {
		return fmt.Errorf("sweeper already running")
	}

	s.c = cron.New()
	if _, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.run); err != nil {
		s.c = nil
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.c.Start()

	log.Info().Dur("interval", s.interval).Msg("Session sweeper started")
	return nil
}

// Stop halts the schedule; an in-flight sweep finishes first.
func (s *Sweeper) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	log.Info().Msg("Session sweeper stopped")
}

// SweepNow runs one sweep immediately.
func (s *Sweeper) SweepNow() {
	s.run()
}

func (s *Sweeper) run() {
	evicted := s.registry.Sweep()

	pruned := 0
	if s.transcripts != nil {
		var err error
		pruned, err = s.transcripts.PruneOlderThan(s.retention)
		if err != nil {
			log.Warn().Err(err).Msg("Transcript prune failed")
		}
	}

	if evicted > 0 || pruned > 0 {
		log.Info().
			Int("evicted", evicted).
			Int("transcripts_pruned", pruned).
			Msg("Session sweep complete")
	}
}
