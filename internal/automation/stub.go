//go:build no_automation

package automation

import (
	"errors"
	"log/slog"
	"time"

	"zigbee-go-catalog/internal/coordinator"
)

// ErrDisabled is returned by every operation of the stub build.
var ErrDisabled = errors.New("automation disabled")

// ErrScriptNotFound matches the real build.
var ErrScriptNotFound = errors.New("script not found")

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is a Lua automation.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Config holds engine settings.
type Config struct {
	Budget        time.Duration
	ExecAllowlist []string
	ExecTimeout   time.Duration
}

// Manager is a no-op when automation is disabled.
type Manager struct{}

func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return &Manager{}, nil }

func (m *Manager) Dir() string { return "" }
func (m *Manager) List() ([]*Script, error) { return nil, nil }
func (m *Manager) Get(_ string) (*Script, error) { return nil, ErrDisabled }
func (m *Manager) Save(_ *Script) (*Script, error) { return nil, ErrDisabled }
func (m *Manager) Delete(_ string) error { return ErrDisabled }

// Engine is a no-op when automation is disabled.
type Engine struct{}

func NewEngine(_ *coordinator.Coordinator, _ *Manager, _ Config, _ *slog.Logger) *Engine {
	return &Engine{}
}

func (e *Engine) Start() {}
func (e *Engine) Stop() {}
func (e *Engine) Running() []string { return nil }
func (e *Engine) ReloadScript(_ string) error { return ErrDisabled }
func (e *Engine) StopScript(_ string) {}

func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{Error: ErrDisabled.Error()}
}

func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{Error: ErrDisabled.Error()}
}
