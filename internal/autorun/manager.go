package autorun

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Manager 负责定时测试与记录清理两个后台循环的生命周期
type Manager struct {
	cfg Config

	scheduler *Scheduler
	retention *RetentionCollector

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager(cfg Config) *Manager {
	cfg.Retention = cfg.Retention.withDefaults()
	return &Manager{cfg: cfg}
}

func (m *Manager) WithScheduler(s *Scheduler) *Manager {
	if m == nil {
		return nil
	}
	m.scheduler = s
	if s != nil {
		s.OnError(m.cfg.Retention.OnError)
	}
	return m
}

func (m *Manager) WithRetention(r *RetentionCollector) *Manager {
	if m == nil {
		return nil
	}
	m.retention = r
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.Enabled {
		if m.scheduler == nil {
			m.cancel()
			return errors.New("scheduler is required when auto run enabled")
		}
		m.spawn(runCtx, m.scheduler.Run)
	}

	if m.cfg.Retention.Enabled {
		if m.retention == nil {
			m.cancel()
			return errors.New("retention collector is required when retention enabled")
		}
		m.spawn(runCtx, m.retention.Run)
	}

	return nil
}

func (m *Manager) spawn(ctx context.Context, run func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.runErrMu.Lock()
			if m.runErr == nil {
				m.runErr = err
			}
			m.runErrMu.Unlock()
			m.cancel()
		}
	}()
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
