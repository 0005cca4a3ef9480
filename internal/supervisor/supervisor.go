package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/lambda-feedback/hellojoe/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Supervisor maintains a fixed-size pool of worker processes and
// replaces every worker that exits involuntarily.
type Supervisor struct {
	config  Config
	policy  Policy
	spawner worker.Spawner
	now     func() time.Time
	log     Logger

	// mu guards state and the lifecycle flags. It is never held
	// across a spawn or a respawn delay.
	mu       sync.Mutex
	state    *State
	started  bool
	stopping bool

	// ctx is cancelled on shutdown, aborting pending respawns
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks the initial spawns, event watchers and pending respawns
	wg sync.WaitGroup
}

type Params struct {
	// Config is the config of the pool
	Config Config

	// Spawner creates the worker processes
	Spawner worker.Spawner

	// Log is the logger to report pool events to. Defaults to
	// a development logger writing to stderr.
	Log Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func New(params Params) (*Supervisor, error) {
	if params.Spawner == nil {
		return nil, ErrMissingSpawner
	}

	if params.Log == nil {
		params.Log = DefaultLogger()
	}

	if params.Now == nil {
		params.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		config:  params.Config,
		policy:  params.Config.Policy(),
		spawner: params.Spawner,
		now:     params.Now,
		log:     params.Log,
		state:   newState(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start validates the config and spawns the initial pool. It does not
// wait for the workers to come online. Spawn errors are handled like
// worker crashes and never returned.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	// a concurrent Shutdown waits for the initial spawns
	s.wg.Add(1)
	s.mu.Unlock()

	for i := 0; i < s.config.Cores; i++ {
		s.spawn(0)
	}

	s.wg.Done()

	mode := "shared-socket"
	if s.config.Independent() {
		mode = "independent"
	}

	s.log.Info("spawned pool",
		zap.Int("size", s.config.Cores),
		zap.String("mode", mode),
	)

	return nil
}

// Shutdown stops the pool. Pending respawns are cancelled, and live
// workers are asked to terminate. Workers still running after the
// configured shutdown timeout, or once ctx is done, are killed. Exits
// caused by the shutdown are voluntary and not replaced.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	handles := s.state.handles()
	s.mu.Unlock()

	s.cancel()

	s.log.Info("shutting down pool", zap.Int("workers", len(handles)))

	stopCtx, cancelStop := ctx, context.CancelFunc(func() {})
	if s.config.ShutdownTimeout > 0 {
		stopCtx, cancelStop = context.WithTimeout(ctx, s.config.ShutdownTimeout)
	}
	defer cancelStop()

	var g errgroup.Group
	for _, h := range handles {
		g.Go(h.Stop)
	}
	stopErr := g.Wait()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-stopCtx.Done():
		s.mu.Lock()
		remaining := s.state.handles()
		s.mu.Unlock()

		s.log.Warn("workers did not exit in time; killing",
			zap.Int("workers", len(remaining)),
		)

		for _, h := range remaining {
			h.Kill()
		}

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if closer, ok := s.spawner.(io.Closer); ok {
		if err := closer.Close(); err != nil && stopErr == nil {
			stopErr = fmt.Errorf("failed to close spawner: %w", err)
		}
	}

	return stopErr
}

// Workers returns a record for every live worker, ordered by id.
func (s *Supervisor) Workers() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.list()
}

// ConsecutiveFailures returns the current length of the failure streak.
func (s *Supervisor) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.failures
}

// spawn creates a worker, replacing the worker with the given id, or 0
// for a worker of the initial pool.
func (s *Supervisor) spawn(replaced int) {
	h, err := s.spawner.Spawn(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}

		s.log.Warn("failed to spawn worker",
			zap.Int("replaces", replaced),
			zap.Error(err),
		)

		// a worker that never started counts like one that died
		// immediately, so a broken command ends up throttled
		s.spawnFailed(replaced)
		return
	}

	s.mu.Lock()
	// the record must exist before any exit of the worker is observed
	s.state.add(h, s.now())
	stopping := s.stopping
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug("spawned worker", zap.Int("pid", h.ID()))

	if stopping {
		// shutdown started while the worker was spawned
		h.Stop()
	}

	go s.watch(h, replaced)
}

// watch consumes the events of one worker until it exits.
func (s *Supervisor) watch(h worker.Handle, replaced int) {
	defer s.wg.Done()

	for evt := range h.Events() {
		switch e := evt.(type) {
		case worker.OnlineEvent:
			if replaced != 0 {
				s.log.Info("worker has successfully replaced previous worker",
					zap.Int("pid", h.ID()),
					zap.Int("replaced", replaced),
				)
			} else {
				s.log.Debug("worker online", zap.Int("pid", h.ID()))
			}

		case worker.ListeningEvent:
			s.log.Info("worker is now listening",
				zap.Int("pid", h.ID()),
				zap.String("address", e.Address),
				zap.Int("port", e.Port),
			)

		case worker.ExitEvent:
			s.handleExit(h.ID(), e)
		}
	}
}

func (s *Supervisor) handleExit(id int, evt worker.ExitEvent) {
	s.mu.Lock()
	record, ok := s.state.remove(id)

	if evt.Voluntary || s.stopping {
		s.mu.Unlock()
		s.log.Info("worker terminated voluntarily", zap.Int("pid", id))
		return
	}

	var lifetime time.Duration
	if ok {
		lifetime = s.now().Sub(record.StartedAt)
	}

	// classification and scheduling happen under the same lock as
	// the removal, so no other exit interleaves for this slot
	d := s.state.classify(s.policy, lifetime)
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("worker terminated; restarting", append(
		exitFields(evt),
		zap.Int("pid", id),
		zap.Duration("lifetime", lifetime),
	)...)

	s.respawn(id, d)
}

// spawnFailed classifies a failed spawn like an exit with zero lifetime.
func (s *Supervisor) spawnFailed(replaced int) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	d := s.state.classify(s.policy, 0)
	s.wg.Add(1)
	s.mu.Unlock()

	s.respawn(replaced, d)
}

// respawn schedules exactly one replacement. The caller has already
// added the pending respawn to the wait group.
func (s *Supervisor) respawn(replaced int, d Decision) {
	if d.Throttled {
		s.log.Warn("consecutive failures; pausing before respawning",
			zap.Int("failures", d.Failures),
			zap.Duration("delay", d.Delay),
		)
	}

	go s.respawnAfter(d.Delay, replaced)
}

func (s *Supervisor) respawnAfter(delay time.Duration, replaced int) {
	defer s.wg.Done()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			s.log.Debug("cancelled pending respawn", zap.Int("replaces", replaced))
			return
		case <-timer.C:
		}
	}

	if s.ctx.Err() != nil {
		return
	}

	s.spawn(replaced)
}

func exitFields(evt worker.ExitEvent) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if evt.Code != nil {
		fields = append(fields, zap.Int("code", *evt.Code))
	}

	if evt.Signal != nil {
		fields = append(fields, zap.Stringer("signal", syscall.Signal(*evt.Signal)))
	}

	return fields
}
