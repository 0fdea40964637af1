// Package procs spawns, kills and tracks the OS process behind each active
// agent. The process table lives in the shared state store and is the
// single source of truth for "is agent X currently running".
package procs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"go-agent-fleet/internal/roster"
	"go-agent-fleet/internal/state"
)

const tableKey = "fleet:procs"

// Entry is one tracked agent process.
type Entry struct {
	PID       int       `json:"pid"`
	SpawnedAt time.Time `json:"spawnedAt"`
	RunID     string    `json:"runId"`
}

// ProcessInfo is the liveness view of one tracked process.
type ProcessInfo struct {
	PID       int           `json:"pid"`
	SpawnedAt time.Time     `json:"spawnedAt"`
	Online    bool          `json:"online"`
	Uptime    time.Duration `json:"uptime"`
}

// LaunchContext is the typed configuration handed to a spawned agent
// process, serialized to a file whose path is passed on the command line.
type LaunchContext struct {
	AgentID      string   `json:"agentId"`
	SystemPrompt string   `json:"systemPrompt"`
	Tools        []string `json:"tools,omitempty"`
}

// Config holds process manager settings.
type Config struct {
	// AgentCommand is the binary launched per agent; AgentArgs are
	// prepended before the generated --id/--launch flags.
	AgentCommand string
	AgentArgs    []string
	LogDir       string
	RunDir       string
}

// Manager owns agent process lifecycle.
type Manager struct {
	store   state.Store
	cfg     Config
	prompts PromptStore
	skills  SkillStore
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPromptStore installs a store of per-member custom prompts.
func WithPromptStore(ps PromptStore) Option {
	return func(m *Manager) { m.prompts = ps }
}

// WithSkillStore installs a store of agent-authored skills.
func WithSkillStore(ss SkillStore) Option {
	return func(m *Manager) { m.skills = ss }
}

// NewManager creates a Manager.
func NewManager(store state.Store, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// runtimePrompt resolves the member's system prompt: a stored custom prompt
// wins verbatim, otherwise the context is composed from the roster fields.
func (m *Manager) runtimePrompt(ctx context.Context, member roster.Member, roleDescription string) (string, error) {
	if m.prompts != nil {
		custom, ok, err := m.prompts.CustomPrompt(ctx, member.ID)
		if err != nil {
			return "", fmt.Errorf("load custom prompt for %s: %w", member.ID, err)
		}
		if ok && custom != "" {
			return custom, nil
		}
	}
	var skills []roster.Skill
	if m.skills != nil {
		var err error
		skills, err = m.skills.SkillsFor(ctx, member.ID)
		if err != nil {
			return "", fmt.Errorf("load skills for %s: %w", member.ID, err)
		}
	}
	return ComposePrompt(member, roleDescription, skills), nil
}

// Spawn launches one agent process for the member and records it in the
// process table. Any previously tracked process for the same agent is
// terminated first, so an agent id maps to at most one live process. A
// launch failure leaves the table untouched.
func (m *Manager) Spawn(ctx context.Context, member roster.Member, roleDescription string) (Entry, error) {
	if err := m.Kill(ctx, member.ID); err != nil {
		return Entry{}, err
	}

	prompt, err := m.runtimePrompt(ctx, member, roleDescription)
	if err != nil {
		return Entry{}, err
	}
	launch := LaunchContext{
		AgentID:      member.ID,
		SystemPrompt: prompt,
		Tools:        resolveTools(member),
	}
	if err := os.MkdirAll(m.cfg.RunDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create run dir: %w", err)
	}
	launchPath := filepath.Join(m.cfg.RunDir, "agent-"+member.ID+".json")
	data, err := json.MarshalIndent(launch, "", "  ")
	if err != nil {
		return Entry{}, err
	}
	if err := os.WriteFile(launchPath, data, 0o600); err != nil {
		return Entry{}, fmt.Errorf("write launch context: %w", err)
	}

	if err := os.MkdirAll(m.cfg.LogDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(m.cfg.LogDir, "agent-"+member.ID+".log")
	logf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("open agent log: %w", err)
	}
	defer logf.Close()

	args := append(append([]string{}, m.cfg.AgentArgs...), "--id", member.ID, "--launch", launchPath)
	cmd := exec.Command(m.cfg.AgentCommand, args...)
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return Entry{}, fmt.Errorf("spawn %s: %w", member.ID, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	entry := Entry{PID: pid, SpawnedAt: time.Now(), RunID: uuid.NewString()}
	err = m.store.Update(ctx, tableKey, 0, func(raw []byte) (any, error) {
		tbl, err := decodeTable(raw)
		if err != nil {
			return nil, err
		}
		tbl[member.ID] = entry
		return tbl, nil
	})
	if err != nil {
		terminate(pid)
		return Entry{}, fmt.Errorf("record process entry for %s: %w", member.ID, err)
	}
	m.logger.Info("agent spawned", "agent", member.ID, "pid", pid, "log", logPath)
	return entry, nil
}

// Kill terminates the tracked process for agentID and clears its table
// entry. The entry is cleared even when the process was already gone, and
// killing an untracked agent is a successful no-op.
func (m *Manager) Kill(ctx context.Context, agentID string) error {
	var victim *Entry
	err := m.store.Update(ctx, tableKey, 0, func(raw []byte) (any, error) {
		tbl, err := decodeTable(raw)
		if err != nil {
			return nil, err
		}
		if e, ok := tbl[agentID]; ok {
			victim = &e
			delete(tbl, agentID)
		}
		if len(tbl) == 0 {
			return nil, nil
		}
		return tbl, nil
	})
	if err != nil {
		return fmt.Errorf("clear process entry for %s: %w", agentID, err)
	}
	if victim != nil {
		terminate(victim.PID)
		m.logger.Info("agent killed", "agent", agentID, "pid", victim.PID)
	}
	return nil
}

// List returns the liveness view of every tracked process. Liveness is
// probed with a zero-effect signal.
func (m *Manager) List(ctx context.Context) (map[string]ProcessInfo, error) {
	var tbl map[string]Entry
	_, ok, err := m.store.Get(ctx, tableKey, &tbl)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ProcessInfo, len(tbl))
	if !ok {
		return out, nil
	}
	for id, e := range tbl {
		online := alive(e.PID)
		info := ProcessInfo{PID: e.PID, SpawnedAt: e.SpawnedAt, Online: online}
		if online {
			info.Uptime = time.Since(e.SpawnedAt)
		}
		out[id] = info
	}
	return out, nil
}

// Reconcile kills and respawns every active member and kills paused ones,
// bringing the process table in line with the roster. describe supplies the
// template-default behavior text per member and may be nil.
func (m *Manager) Reconcile(ctx context.Context, members []roster.Member, describe func(roster.Member) string) (int, error) {
	spawned := 0
	for _, member := range members {
		if member.Status != roster.StatusActive {
			if err := m.Kill(ctx, member.ID); err != nil {
				return spawned, err
			}
			continue
		}
		desc := ""
		if describe != nil {
			desc = describe(member)
		}
		if _, err := m.Spawn(ctx, member, desc); err != nil {
			m.logger.Error("respawn failed", "agent", member.ID, "error", err)
			continue
		}
		spawned++
	}
	return spawned, nil
}

func decodeTable(raw []byte) (map[string]Entry, error) {
	if raw == nil {
		return map[string]Entry{}, nil
	}
	var tbl map[string]Entry
	if err := json.Unmarshal(raw, &tbl); err != nil {
		return nil, err
	}
	if tbl == nil {
		tbl = map[string]Entry{}
	}
	return tbl, nil
}

// terminate sends SIGTERM and escalates to SIGKILL if that fails. Errors
// are swallowed: the process may already be dead.
func terminate(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		_ = proc.Signal(syscall.SIGKILL)
	}
}

// alive probes a pid with signal 0.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
