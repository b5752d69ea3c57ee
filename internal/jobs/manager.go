// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/queue"
)

// Manager runs jobs in the background with at most one run per job target.
type Manager struct {
	mu      sync.Mutex
	runs    map[string]*Run
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup

	lastRun time.Time
	lastErr string
}

// NewManager creates a Manager. A positive timeout bounds every run.
func NewManager(timeout time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		runs:    make(map[string]*Run),
		timeout: timeout,
		log:     log,
	}
}

func runKey(job queue.Job) string {
	return string(job.Kind) + ":" + job.TargetID
}

// Ensure starts work for job unless a run for the same target is active,
// in which case the existing run is returned with isNew=false.
func (m *Manager) Ensure(ctx context.Context, job queue.Job, work WorkFunc) (*Run, bool) {
	if err := ctx.Err(); err != nil {
		m.log.Debug().Str(xglog.FieldJobID, job.ID).Err(err).Msg("ensure: context already canceled")
		return nil, false
	}

	key := runKey(job)
	m.mu.Lock()
	if run, exists := m.runs[key]; exists {
		select {
		case <-run.Done:
			delete(m.runs, key)
		default:
			m.mu.Unlock()
			m.log.Debug().
				Str(xglog.FieldJobID, job.ID).
				Str("active_job_id", run.Job.ID).
				Msg("ensure: target already running")
			return run, false
		}
	}

	// Runs are detached from the caller; ctx only carries correlation values.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if m.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, m.timeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}

	run := &Run{
		Job:       job,
		StartedAt: time.Now(),
		Done:      make(chan struct{}),
		Cancel:    cancel,
	}
	m.runs[key] = run
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info().
		Str(xglog.FieldJobID, job.ID).
		Str(xglog.FieldJobKind, string(job.Kind)).
		Str("target_id", job.TargetID).
		Msg("job started")

	go m.execute(runCtx, key, run, work)
	return run, true
}

// Get returns the active run for a job target.
func (m *Manager) Get(kind queue.Kind, targetID string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runKey(queue.Job{Kind: kind, TargetID: targetID})]
}

// Active returns the number of runs in flight.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// LastRun reports when the most recent run finished and its error text,
// empty on success. The time is zero before any run has finished.
func (m *Manager) LastRun() (time.Time, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastErr
}

// CancelAll stops all active runs.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Info().Int("count", len(m.runs)).Msg("cancelling all jobs")
	for _, run := range m.runs {
		run.Cancel()
	}
}

// Wait blocks until every started run has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) execute(ctx context.Context, key string, run *Run, work WorkFunc) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str(xglog.FieldJobID, run.Job.ID).
				Interface("panic", r).
				Msg("job panicked")
			run.setError(fmt.Errorf("panic: %v", r))
		}
		run.Cancel()
		close(run.Done)

		m.mu.Lock()
		if m.runs[key] == run {
			delete(m.runs, key)
		}
		m.lastRun = time.Now()
		m.lastErr = ""
		if err := run.Err(); err != nil {
			m.lastErr = err.Error()
		}
		m.mu.Unlock()

		evt := m.log.Info()
		if run.Err() != nil {
			evt = m.log.Warn().Err(run.Err())
		}
		evt.Str(xglog.FieldJobID, run.Job.ID).
			Dur("duration", time.Since(run.StartedAt)).
			Msg("job finished")
	}()

	if err := work(ctx, run.Job); err != nil {
		run.setError(err)
	}
}
