// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package scheduler

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Registry owns the scheduler jobs and their supervised runners. Start
// is idempotent per job name: starting a job twice, e.g. under a config
// reload, attaches it to the supervisor exactly once. There is no
// ambient process-wide state; the registry is the single authority on
// what runs.
type Registry struct {
	supervisor *suture.Supervisor
	logger     zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*Runner
	started map[string]suture.ServiceToken
}

// NewRegistry builds a registry attaching runners to the given
// supervisor subtree.
func NewRegistry(supervisor *suture.Supervisor, logger zerolog.Logger) *Registry {
	return &Registry{
		supervisor: supervisor,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		jobs:       make(map[string]*Runner),
		started:    make(map[string]suture.ServiceToken),
	}
}

// Register makes a job known to the registry without starting it.
func (r *Registry) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.Name()] = NewRunner(job, r.logger)
}

// Start attaches a registered job to the supervisor. Calling Start for
// an already-started job is a logged no-op.
func (r *Registry) Start(jobName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	runner, ok := r.jobs[jobName]
	if !ok {
		return fmt.Errorf("unknown scheduler job %q", jobName)
	}
	if _, running := r.started[jobName]; running {
		r.logger.Debug().Str("job", jobName).Msg("Job already started")
		return nil
	}
	r.started[jobName] = r.supervisor.Add(runner)
	r.logger.Info().Str("job", jobName).Msg("Job scheduled")
	return nil
}

// StartAll starts every registered job.
func (r *Registry) StartAll() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		if err := r.Start(name); err != nil {
			return err
		}
	}
	return nil
}

// Stop detaches a job from the supervisor.
func (r *Registry) Stop(jobName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, running := r.started[jobName]
	if !running {
		return nil
	}
	delete(r.started, jobName)
	return r.supervisor.Remove(token)
}

// Running reports whether a job is currently attached.
func (r *Registry) Running(jobName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, running := r.started[jobName]
	return running
}
