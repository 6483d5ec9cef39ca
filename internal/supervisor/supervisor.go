// Package supervisor runs long-lived background goroutines (the ops
// server) with automatic restart-with-backoff, so a panic or listener
// error in one of them doesn't take down the poll-detect-alert cycle.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerFunc is a function that can be supervised. It should block until
// ctx is cancelled or it encounters an unrecoverable error.
type WorkerFunc func(ctx context.Context) error

// WorkerConfig holds retry/backoff configuration for one worker.
type WorkerConfig struct {
	Name           string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// Worker is a supervised goroutine.
type Worker struct {
	config     WorkerConfig
	workerFunc WorkerFunc
	cancel     context.CancelFunc
	retries    int
	lastError  error
	status     WorkerStatus
	startTime  time.Time
	stopTime   time.Time
	mu         sync.RWMutex
}

// WorkerStatus is the current lifecycle state of a worker.
type WorkerStatus string

const (
	StatusStopped  WorkerStatus = "stopped"
	StatusStarting WorkerStatus = "starting"
	StatusRunning  WorkerStatus = "running"
	StatusFailed   WorkerStatus = "failed"
	StatusRetrying WorkerStatus = "retrying"
)

// Supervisor manages a set of workers with lifecycle management.
type Supervisor struct {
	workers   map[string]*Worker
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	started   bool
	startTime time.Time
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(logger *zap.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		workers: make(map[string]*Worker),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddWorker registers a worker to be supervised. Must be called before Start.
func (s *Supervisor) AddWorker(config WorkerConfig, workerFunc WorkerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot add worker while supervisor is running")
	}
	if _, exists := s.workers[config.Name]; exists {
		return fmt.Errorf("worker %s already exists", config.Name)
	}

	s.workers[config.Name] = &Worker{
		config:     config,
		workerFunc: workerFunc,
		status:     StatusStopped,
	}
	s.logger.Info("worker added", zap.String("name", config.Name))
	return nil
}

// Start starts all registered workers.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor already started")
	}
	s.started = true
	s.startTime = time.Now()

	s.logger.Info("supervisor starting", zap.Int("workers", len(s.workers)))
	for name, worker := range s.workers {
		s.wg.Add(1)
		go s.runWorker(name, worker)
	}
	return nil
}

// Stop cancels all workers and waits up to 30s for them to return.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor not started")
	}
	s.mu.Unlock()

	s.logger.Info("supervisor stopping")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all workers stopped")
	case <-time.After(30 * time.Second):
		s.logger.Warn("timeout waiting for workers to stop")
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) runWorker(name string, worker *Worker) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(s.ctx)
	worker.cancel = cancel
	defer cancel()

	logger := s.logger.With(zap.String("worker", name))

	for {
		select {
		case <-s.ctx.Done():
			worker.setStatus(StatusStopped)
			logger.Info("worker stopped by supervisor")
			return
		default:
		}

		if worker.config.MaxRetries > 0 && worker.retries >= worker.config.MaxRetries {
			worker.setStatus(StatusFailed)
			logger.Error("worker failed after max retries",
				zap.Int("retries", worker.retries),
				zap.Error(worker.lastError))
			return
		}

		worker.setStatus(StatusStarting)
		worker.startTime = time.Now()
		logger.Info("starting worker", zap.Int("retry", worker.retries))

		err := s.executeWorker(ctx, worker, logger)
		worker.stopTime = time.Now()

		if err == nil {
			worker.setStatus(StatusStopped)
			logger.Info("worker completed")
			return
		}

		worker.lastError = err
		worker.retries++

		if err == context.Canceled {
			worker.setStatus(StatusStopped)
			logger.Info("worker cancelled")
			return
		}

		worker.setStatus(StatusRetrying)
		logger.Error("worker failed", zap.Error(err), zap.Int("retries", worker.retries))

		backoff := s.calculateBackoff(worker.retries, worker.config)
		logger.Info("retrying worker after backoff", zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
			continue
		case <-s.ctx.Done():
			worker.setStatus(StatusStopped)
			return
		}
	}
}

func (s *Supervisor) executeWorker(ctx context.Context, worker *Worker, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	worker.setStatus(StatusRunning)
	return worker.workerFunc(ctx)
}

func (s *Supervisor) calculateBackoff(retries int, config WorkerConfig) time.Duration {
	backoff := config.InitialBackoff
	for i := 0; i < retries-1; i++ {
		backoff = time.Duration(float64(backoff) * config.BackoffFactor)
		if backoff > config.MaxBackoff {
			return config.MaxBackoff
		}
	}
	return backoff
}

// GetWorkerStatus returns the status of a specific worker.
func (s *Supervisor) GetWorkerStatus(name string) (WorkerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	worker, exists := s.workers[name]
	if !exists {
		return "", fmt.Errorf("worker %s not found", name)
	}

	worker.mu.RLock()
	defer worker.mu.RUnlock()
	return worker.status, nil
}

func (w *Worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}
