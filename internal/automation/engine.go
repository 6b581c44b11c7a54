//go:build !no_automation

package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	lua "github.com/yuin/gopher-lua"

	"zigbee-go-catalog/internal/coordinator"
	"zigbee-go-catalog/internal/definition"
)

const (
	defaultBudget      = 30 * time.Second
	defaultExecTimeout = 10 * time.Second
	commandQueueSize   = 64
	maxHandlers        = 100
)

// Config holds engine settings.
type Config struct {
	// Budget bounds every entry into a script: its top-level chunk and each
	// handler, timer or schedule callback.
	Budget        time.Duration
	ExecAllowlist []string // absolute paths system.exec may run
	ExecTimeout   time.Duration
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a zigbee.on registration.
type luaEventHandler struct {
	eventType string // "*" matches every event
	device    string // IEEE or friendly name, empty matches any
	property  string // state_change only: key that must be in the update
	fn        *lua.LFunction
}

// scriptVM is the Lua state of one running script. Every access to the
// state after loading goes through commands.
type scriptVM struct {
	id       string
	state    *lua.LState
	commands chan func()
	cron     *cron.Cron
	budget   time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	handlers []luaEventHandler

	// logs, when set, captures log output instead of the engine logger.
	logs func(string)
}

// call runs fn under the script budget.
func (vm *scriptVM) call(fn *lua.LFunction, args ...lua.LValue) error {
	ctx, cancel := context.WithTimeout(vm.ctx, vm.budget)
	defer cancel()
	vm.state.SetContext(ctx)
	defer vm.state.RemoveContext()
	return vm.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

// load runs the top-level chunk under the script budget.
func (vm *scriptVM) load(code string) error {
	fn, err := vm.state.LoadString(code)
	if err != nil {
		return err
	}
	return vm.call(fn)
}

// enqueue schedules work on the VM goroutine. It reports false when the
// script is stopped or its queue is full.
func (vm *scriptVM) enqueue(fn func()) bool {
	if vm.ctx.Err() != nil {
		return false
	}
	select {
	case vm.commands <- fn:
		return true
	default:
		return false
	}
}

func (vm *scriptVM) loop() {
	defer vm.state.Close()
	for {
		select {
		case <-vm.ctx.Done():
			return
		case fn := <-vm.commands:
			fn()
		}
	}
}

func (vm *scriptVM) addHandler(h luaEventHandler) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlers {
		return fmt.Errorf("too many handlers (max %d)", maxHandlers)
	}
	vm.handlers = append(vm.handlers, h)
	return nil
}

func (vm *scriptVM) snapshotHandlers() []luaEventHandler {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]luaEventHandler(nil), vm.handlers...)
}

// Engine runs one Lua VM per enabled script and feeds it coordinator
// events.
type Engine struct {
	coord   *coordinator.Coordinator
	manager *Manager
	logger  *slog.Logger
	cfg     Config

	mu    sync.Mutex
	vms   map[string]*scriptVM
	unsub func()
}

// NewEngine creates an automation engine.
func NewEngine(coord *coordinator.Coordinator, mgr *Manager, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Budget <= 0 {
		cfg.Budget = defaultBudget
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	return &Engine{
		coord:   coord,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		cfg:     cfg,
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to coordinator events and starts every enabled script.
func (e *Engine) Start() {
	e.unsub = e.coord.Events().OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}
	e.logger.Info("automation engine started", "scripts", len(e.Running()))
}

// Stop stops every script and unsubscribes from events.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}
	e.mu.Lock()
	vms := e.vms
	e.vms = make(map[string]*scriptVM)
	e.mu.Unlock()
	for _, vm := range vms {
		vm.stop()
	}
	e.logger.Info("automation engine stopped")
}

// Running returns the IDs of the running scripts.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReloadScript restarts a script from disk. A disabled script is stopped.
func (e *Engine) ReloadScript(id string) error {
	e.StopScript(id)
	s, err := e.manager.Get(id)
	if err != nil {
		return err
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script.
func (e *Engine) StopScript(id string) {
	e.mu.Lock()
	vm, ok := e.vms[id]
	delete(e.vms, id)
	e.mu.Unlock()
	if ok {
		vm.stop()
		e.logger.Info("script stopped", "id", id)
	}
}

func (vm *scriptVM) stop() {
	<-vm.cron.Stop().Done()
	vm.cancel()
}

// newVM creates a sandboxed Lua state with the script API installed.
func (e *Engine) newVM(ctx context.Context, id string) *scriptVM {
	ctx, cancel := context.WithCancel(ctx)
	vm := &scriptVM{
		id:       id,
		state:    newSandbox(),
		commands: make(chan func(), commandQueueSize),
		cron:     cron.New(),
		budget:   e.cfg.Budget,
		ctx:      ctx,
		cancel:   cancel,
	}
	registerZigbeeModule(vm, e)
	registerLogModule(vm, e)
	registerSystemModule(vm, e)
	return vm
}

func (e *Engine) startScript(s *Script) error {
	vm := e.newVM(e.coord.Context(), s.ID)
	if err := vm.load(s.LuaCode); err != nil {
		vm.cancel()
		vm.state.Close()
		return fmt.Errorf("load script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		defer old.stop()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go vm.loop()
	vm.cron.Start()
	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name, "handlers", len(vm.snapshotHandlers()))
	return nil
}

// RunScript executes a stored script once, see RunLuaCode.
func (e *Engine) RunScript(id string) *RunResult {
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{Error: err.Error(), Duration: "0s"}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a throwaway VM and captures its log output.
// Handlers registered with zigbee.on are invoked once with a synthetic
// event carrying their filter; timers and schedules never fire.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()
	vm := e.newVM(e.coord.Context(), "run")
	defer vm.cancel()
	defer vm.state.Close()

	var logs []string
	vm.logs = func(msg string) { logs = append(logs, msg) }
	result := func(err error) *RunResult {
		r := &RunResult{OK: err == nil, Logs: logs, Duration: time.Since(start).String()}
		if err != nil {
			r.Error = budgetError(err, vm.budget)
		}
		return r
	}

	if err := vm.load(code); err != nil {
		return result(err)
	}
	for _, h := range vm.snapshotHandlers() {
		ev := vm.state.NewTable()
		ev.RawSetString("type", lua.LString(h.eventType))
		if h.device != "" {
			ev.RawSetString("ieee", lua.LString(h.device))
		}
		if h.property != "" {
			ev.RawSetString("property", lua.LString(h.property))
		}
		if err := vm.call(h.fn, ev); err != nil {
			return result(err)
		}
	}
	return result(nil)
}

func budgetError(err error, budget time.Duration) string {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, context.DeadlineExceeded.Error()) {
		return fmt.Sprintf("budget exceeded (%s)", budget)
	}
	return msg
}

// dispatchEvent queues matching handlers on their VMs.
func (e *Engine) dispatchEvent(event coordinator.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		for _, h := range vm.snapshotHandlers() {
			if !matchesHandler(h, event) {
				continue
			}
			if !vm.enqueue(func() { e.callHandler(vm, h, event) }) {
				e.logger.Warn("script queue full, dropping event", "script", vm.id, "type", event.Type)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event coordinator.Event) bool {
	if h.eventType != "*" && h.eventType != event.Type {
		return false
	}
	var ieee, name string
	switch data := event.Data.(type) {
	case coordinator.StateChange:
		ieee, name = data.IEEE, data.FriendlyName
		if h.property != "" {
			if _, ok := data.Update[h.property]; !ok {
				return false
			}
		}
	case coordinator.DeviceEvent:
		ieee, name = data.IEEE, data.FriendlyName
		if h.property != "" {
			return false
		}
	default:
		return h.device == "" && h.property == ""
	}
	return h.device == "" || strings.EqualFold(h.device, ieee) || h.device == name
}

func (e *Engine) callHandler(vm *scriptVM, h luaEventHandler, event coordinator.Event) {
	fields := eventFields(event)
	if sc, ok := event.Data.(coordinator.StateChange); ok && h.property != "" {
		fields["property"] = h.property
		fields["value"] = sc.Update[h.property]
	}
	if err := vm.call(h.fn, goToLua(vm.state, fields)); err != nil {
		e.logger.Error("lua handler", "script", vm.id, "type", event.Type, "err", budgetError(err, vm.budget))
	}
}

// eventFields flattens an event into the table handed to Lua handlers.
func eventFields(event coordinator.Event) map[string]any {
	fields := map[string]any{"type": event.Type}
	switch data := event.Data.(type) {
	case coordinator.StateChange:
		fields["ieee"] = data.IEEE
		fields["friendly_name"] = data.FriendlyName
		fields["state"] = data.State
		fields["update"] = data.Update
	case coordinator.DeviceEvent:
		fields["ieee"] = data.IEEE
		fields["friendly_name"] = data.FriendlyName
		fields["model"] = data.Model
		fields["vendor"] = data.Vendor
		fields["supported"] = data.Supported
		if data.OldName != "" {
			fields["old_name"] = data.OldName
		}
	case map[string]any:
		for k, v := range data {
			fields[k] = v
		}
	}
	return fields
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case definition.Values:
		return goToLua(L, map[string]any(val))
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value to the Go value a converter expects. Tables
// with a contiguous 1..n array part become slices, others become maps.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, vv lua.LValue) {
			out[k.String()] = luaToGo(vv)
		})
		return out
	default:
		return val.String()
	}
}
