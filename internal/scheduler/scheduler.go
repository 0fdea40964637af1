// Package scheduler wakes idle agents: a time-driven tick loop and a
// change-driven signal watcher. Both may wake the same member in the same
// window; wakes are idempotent, so no deduplication is attempted.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/roster"
)

// Config holds scheduler settings.
type Config struct {
	TickEnabled     bool
	TickInterval    time.Duration
	InitialDelay    time.Duration
	WatcherEnabled  bool
	WatcherInterval time.Duration
}

// DefaultConfig returns the intervals the original deployment uses: a daily
// tick and a half-hourly signal check.
func DefaultConfig() Config {
	return Config{
		TickInterval:    24 * time.Hour,
		InitialDelay:    time.Minute,
		WatcherInterval: 30 * time.Minute,
	}
}

// Scheduler publishes agent.tick events for members that qualify for wakes.
type Scheduler struct {
	id     string
	cfg    Config
	bus    eventbus.Bus
	source roster.Source
	logger *slog.Logger

	mu          sync.Mutex
	lastSignals string
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a Scheduler.
func New(id string, cfg Config, bus eventbus.Bus, source roster.Source, logger *slog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.WatcherInterval <= 0 {
		cfg.WatcherInterval = DefaultConfig().WatcherInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{id: id, cfg: cfg, bus: bus, source: source, logger: logger}
}

// ID returns the scheduler's bus identity.
func (s *Scheduler) ID() string { return s.id }

// Start launches the enabled loops. With neither loop enabled the scheduler
// is inert and agents wake only through manual triggers.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.cfg.TickEnabled {
		s.wg.Add(1)
		go s.tickLoop(runCtx)
		s.logger.Info("tick loop enabled", "interval", s.cfg.TickInterval, "initialDelay", s.cfg.InitialDelay)
	}
	if s.cfg.WatcherEnabled {
		s.wg.Add(1)
		go s.watcherLoop(runCtx)
		s.logger.Info("signal watcher enabled", "interval", s.cfg.WatcherInterval)
	}
	if !s.cfg.TickEnabled && !s.cfg.WatcherEnabled {
		s.logger.Info("no tick, no watcher; agents wake on manual trigger only")
	}
	return nil
}

// Stop cancels the loops.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	select {
	case <-time.After(s.cfg.InitialDelay):
	case <-ctx.Done():
		return
	}
	s.runTick(ctx)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick wakes every qualifying member with the current signals snapshot.
// Fetch failures skip this firing; the next interval still fires.
func (s *Scheduler) runTick(ctx context.Context) {
	team, err := s.source.Team(ctx)
	if err != nil {
		s.logger.Error("tick: fetch team failed", "error", err)
		return
	}
	signals, err := s.source.Signals(ctx)
	if err != nil {
		s.logger.Warn("tick: fetch signals failed", "error", err)
		signals = ""
	}
	n := s.wake(ctx, team, signals)
	s.logger.Info("tick", "woken", n, "signals", signals != "")
}

func (s *Scheduler) watcherLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.WatcherInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkSignals(ctx)
		}
	}
}

// checkSignals compares the signals snapshot verbatim against the last one
// seen and wakes the team when it changed to a non-empty value.
func (s *Scheduler) checkSignals(ctx context.Context) {
	signals, err := s.source.Signals(ctx)
	if err != nil {
		s.logger.Warn("signal watcher: fetch failed", "error", err)
		return
	}
	s.mu.Lock()
	changed := signals != "" && signals != s.lastSignals
	if changed {
		s.lastSignals = signals
	}
	s.mu.Unlock()
	if !changed {
		return
	}
	team, err := s.source.Team(ctx)
	if err != nil {
		s.logger.Error("signal watcher: fetch team failed", "error", err)
		return
	}
	n := s.wake(ctx, team, signals)
	s.logger.Info("signal watcher: world changed, waking agents", "woken", n)
}

// wake publishes one agent.tick per qualifying member.
func (s *Scheduler) wake(ctx context.Context, team []roster.Member, signals string) int {
	woken := 0
	for _, m := range team {
		if !m.ShouldWake() {
			continue
		}
		ev := core.Event{
			Source:  s.id,
			Payload: core.EncodePayload(core.AgentTick{AgentID: m.ID, Signals: signals}),
		}
		if err := s.bus.Publish(ctx, core.TopicAgentTick, ev); err != nil {
			s.logger.Error("publish agent.tick failed", "agent", m.ID, "error", err)
			continue
		}
		woken++
	}
	return woken
}

// WakeAll wakes every qualifying member immediately, fetching signals when
// none are supplied. Used by the manual trigger path.
func (s *Scheduler) WakeAll(ctx context.Context, signals string) (int, error) {
	team, err := s.source.Team(ctx)
	if err != nil {
		return 0, err
	}
	if signals == "" {
		signals, _ = s.source.Signals(ctx)
	}
	return s.wake(ctx, team, signals), nil
}

// Wake wakes one member immediately regardless of wake settings.
func (s *Scheduler) Wake(ctx context.Context, agentID, signals string) error {
	if signals == "" {
		signals, _ = s.source.Signals(ctx)
	}
	ev := core.Event{
		Source:  s.id,
		Payload: core.EncodePayload(core.AgentTick{AgentID: agentID, Signals: signals}),
	}
	return s.bus.Publish(ctx, core.TopicAgentTick, ev)
}

var _ core.Agent = (*Scheduler)(nil)
