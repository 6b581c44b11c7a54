//go:build !no_automation

package automation

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const maxExecOutput = 64 << 10

// newSandbox returns a Lua state with only the base, table, string and math
// libraries. Everything that reaches the file system or loads code is
// removed.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "package", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// registerLogModule installs log.debug/info/warn/error.
func registerLogModule(vm *scriptVM, e *Engine) {
	L := vm.state
	mod := L.NewTable()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		mod.RawSetString(level, L.NewFunction(func(L *lua.LState) int {
			scriptLog(vm, e, level, luaArgs(L))
			return 0
		}))
	}
	L.SetGlobal("log", mod)
}

// luaArgs joins all arguments the way print does.
func luaArgs(L *lua.LState) string {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	return strings.Join(parts, " ")
}

func scriptLog(vm *scriptVM, e *Engine, level, msg string) {
	if vm.logs != nil {
		if level != "info" {
			msg = "[" + level + "] " + msg
		}
		vm.logs(msg)
		return
	}
	logger := e.logger.With("script", vm.id)
	switch level {
	case "debug":
		logger.Debug(msg)
	case "warn":
		logger.Warn(msg)
	case "error":
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

// registerSystemModule installs the `system` table: clock helpers and an
// allowlisted exec.
func registerSystemModule(vm *scriptVM, e *Engine) {
	L := vm.state
	mod := L.NewTable()
	mod.RawSetString("datetime", L.NewFunction(systemDatetime))
	mod.RawSetString("time_between", L.NewFunction(systemTimeBetween))
	mod.RawSetString("exec", L.NewFunction(func(L *lua.LState) int {
		return systemExec(L, vm, e)
	}))
	L.SetGlobal("system", mod)
}

// system.datetime(component)
func systemDatetime(L *lua.LState) int {
	component := L.CheckString(1)
	now := time.Now()
	switch component {
	case "hour":
		L.Push(lua.LNumber(now.Hour()))
	case "minute":
		L.Push(lua.LNumber(now.Minute()))
	case "second":
		L.Push(lua.LNumber(now.Second()))
	case "weekday":
		L.Push(lua.LNumber(now.Weekday()))
	case "day":
		L.Push(lua.LNumber(now.Day()))
	case "month":
		L.Push(lua.LNumber(now.Month()))
	case "year":
		L.Push(lua.LNumber(now.Year()))
	case "timestamp":
		L.Push(lua.LNumber(now.Unix()))
	case "time_str":
		L.Push(lua.LString(now.Format("15:04:05")))
	case "date_str":
		L.Push(lua.LString(now.Format("2006-01-02")))
	default:
		L.ArgError(1, "unknown component: "+component)
		return 0
	}
	return 1
}

// system.time_between(from_hour, to_hour), wrapping over midnight when
// from > to.
func systemTimeBetween(L *lua.LState) int {
	L.Push(lua.LBool(hourBetween(time.Now().Hour(), L.CheckInt(1), L.CheckInt(2))))
	return 1
}

func hourBetween(hour, from, to int) bool {
	if from <= to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

// system.exec(cmd) returns stdout, or "" plus an error message.
func systemExec(L *lua.LState, vm *scriptVM, e *Engine) int {
	out, err := runAllowed(vm.ctx, e.cfg, L.CheckString(1))
	if err != nil {
		e.logger.Warn("exec", "script", vm.id, "err", err)
		L.Push(lua.LString(""))
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(out))
	return 1
}

func runAllowed(ctx context.Context, cfg Config, command string) (string, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", errors.New("empty command")
	}
	binary := parts[0]
	if !filepath.IsAbs(binary) {
		return "", errors.New(binary + ": not an absolute path")
	}
	if !slices.Contains(cfg.ExecAllowlist, binary) {
		return "", errors.New(binary + ": not in exec allowlist")
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ExecTimeout)
	defer cancel()
	stdout, err := exec.CommandContext(ctx, binary, parts[1:]...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.New(binary + ": timeout")
		}
		return "", err
	}
	if len(stdout) > maxExecOutput {
		stdout = stdout[:maxExecOutput]
	}
	return string(stdout), nil
}
