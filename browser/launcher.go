package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrLauncherClosed is returned by Get after Close.
var ErrLauncherClosed = errors.New("browser launcher closed")

// LaunchFunc starts a browser and returns an agent for it.
type LaunchFunc func(ctx context.Context) (Agent, error)

// Launcher starts the shared agent on first use and hands the same agent to
// every caller afterwards. A failed launch is not remembered: the next Get
// tries again. It is safe for concurrent use.
type Launcher struct {
	mu     sync.Mutex
	launch LaunchFunc
	agent  Agent
	closed bool

	// ready mirrors agent != nil and is readable without mu.
	ready  atomic.Bool
	active atomic.Int32
}

// NewLauncher creates a Launcher. Nothing is started until the first Get.
func NewLauncher(launch LaunchFunc) *Launcher {
	return &Launcher{launch: launch}
}

// Get returns the shared agent, launching it if needed. Concurrent callers
// during the first launch wait for it and receive the same agent.
func (l *Launcher) Get(ctx context.Context) (Agent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLauncherClosed
	}
	if l.agent != nil {
		return l.agent, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, err := l.launch(ctx)
	if err != nil {
		slog.Error("browser launch failed", "error", err)
		return nil, err
	}
	slog.Info("browser agent ready")
	l.agent = &trackedAgent{Agent: a, active: &l.active}
	l.ready.Store(true)
	return l.agent, nil
}

// Launched reports whether the shared agent is running. It does not block
// while a launch is in progress.
func (l *Launcher) Launched() bool {
	return l.ready.Load()
}

// ActiveSessions returns the number of sessions opened and not yet closed.
func (l *Launcher) ActiveSessions() int {
	return int(l.active.Load())
}

// Close shuts the agent down if it was started. Later calls to Get fail.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.ready.Store(false)
	if l.agent == nil {
		return nil
	}
	slog.Info("browser shutting down")
	err := l.agent.Close()
	l.agent = nil
	return err
}

// trackedAgent counts live sessions for health reporting.
type trackedAgent struct {
	Agent
	active *atomic.Int32
}

func (a *trackedAgent) NewSession(ctx context.Context) (Session, error) {
	s, err := a.Agent.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	a.active.Add(1)
	return &trackedSession{Session: s, active: a.active}, nil
}

type trackedSession struct {
	Session
	active *atomic.Int32
	once   sync.Once
}

func (s *trackedSession) Close() error {
	err := s.Session.Close()
	s.once.Do(func() { s.active.Add(-1) })
	return err
}
