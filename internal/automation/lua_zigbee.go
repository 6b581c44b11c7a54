//go:build !no_automation

package automation

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-go-catalog/internal/definition"
)

const commandTimeout = 10 * time.Second

// registerZigbeeModule installs the `zigbee` table.
func registerZigbeeModule(vm *scriptVM, e *Engine) {
	L := vm.state
	mod := L.NewTable()
	fns := map[string]func(*lua.LState) int{
		"on":      func(L *lua.LState) int { return zigbeeOn(L, vm) },
		"set":     func(L *lua.LState) int { return zigbeeSet(L, vm, e) },
		"get":     func(L *lua.LState) int { return zigbeeGet(L, vm, e) },
		"state":   func(L *lua.LState) int { return zigbeeState(L, e) },
		"devices": func(L *lua.LState) int { return zigbeeDevices(L, e) },
		"command": func(L *lua.LState) int { return zigbeeCommand(L, vm, e) },
		"after":   func(L *lua.LState) int { return zigbeeAfter(L, vm, e) },
		"every":   func(L *lua.LState) int { return zigbeeEvery(L, vm, e) },
	}
	for name, fn := range fns {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	L.SetGlobal("zigbee", mod)
}

// zigbee.on(event, fn) or zigbee.on(event, {ieee=..., property=...}, fn).
// The event "*" matches everything.
func zigbeeOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	if L.GetTop() >= 3 {
		filter := L.CheckTable(2)
		if v := filter.RawGetString("ieee"); v != lua.LNil {
			h.device = v.String()
		}
		if v := filter.RawGetString("device"); v != lua.LNil {
			h.device = v.String()
		}
		if v := filter.RawGetString("property"); v != lua.LNil {
			h.property = v.String()
		}
		h.fn = L.CheckFunction(3)
	} else {
		h.fn = L.CheckFunction(2)
	}
	if err := vm.addHandler(h); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

func (vm *scriptVM) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(vm.ctx, commandTimeout)
}

// zigbee.set(device, {state="ON"}) returns true, or nil and an error.
func zigbeeSet(L *lua.LState, vm *scriptVM, e *Engine) int {
	id := L.CheckString(1)
	payload, ok := luaToGo(L.CheckTable(2)).(map[string]any)
	if !ok {
		L.ArgError(2, "expected a table of properties")
		return 0
	}
	ctx, cancel := vm.commandContext()
	defer cancel()
	if _, err := e.coord.SetState(ctx, id, payload); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// zigbee.get(device, key) reads key from the device and returns its value.
func zigbeeGet(L *lua.LState, vm *scriptVM, e *Engine) int {
	id := L.CheckString(1)
	key := L.CheckString(2)
	ctx, cancel := vm.commandContext()
	defer cancel()
	values, err := e.coord.GetState(ctx, id, []string{key})
	if err != nil && len(values) == 0 {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(goToLua(L, values[key]))
	return 1
}

// zigbee.state(device) returns the last known state table, or nil.
func zigbeeState(L *lua.LState, e *Engine) int {
	dev, err := e.coord.Devices().GetDevice(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, definition.Values(dev.State)))
	return 1
}

// zigbee.devices() lists every device.
func zigbeeDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	devs, err := e.coord.Devices().ListDevices()
	if err != nil {
		L.Push(tbl)
		return 1
	}
	for i, dev := range devs {
		d := L.NewTable()
		d.RawSetString("ieee", lua.LString(dev.IEEEAddress))
		d.RawSetString("name", lua.LString(dev.DisplayName()))
		d.RawSetString("model", lua.LString(dev.Model))
		d.RawSetString("vendor", lua.LString(dev.Vendor))
		d.RawSetString("model_id", lua.LString(dev.ModelID))
		d.RawSetString("supported", lua.LBool(e.coord.Definition(dev) != nil))
		tbl.RawSetInt(i+1, d)
	}
	L.Push(tbl)
	return 1
}

// zigbee.command(device, endpoint, cluster, command[, params]) sends a raw
// cluster command by name.
func zigbeeCommand(L *lua.LState, vm *scriptVM, e *Engine) int {
	id := L.CheckString(1)
	ep := L.CheckInt(2)
	if ep < 1 || ep > 240 {
		L.ArgError(2, "endpoint must be 1-240")
		return 0
	}
	cluster := L.CheckString(3)
	command := L.CheckString(4)
	var params map[string]any
	if t, ok := L.Get(5).(*lua.LTable); ok {
		params, _ = luaToGo(t).(map[string]any)
	}
	ctx, cancel := vm.commandContext()
	defer cancel()
	if err := e.coord.SendClusterCommand(ctx, id, uint8(ep), cluster, command, params); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// zigbee.after(ms, fn) runs fn once after ms milliseconds.
func zigbeeAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	delay := time.Duration(float64(L.CheckNumber(1)) * float64(time.Millisecond))
	fn := L.CheckFunction(2)
	timer := time.AfterFunc(delay, func() {
		ok := vm.enqueue(func() {
			if err := vm.call(fn); err != nil {
				e.logger.Error("after callback", "script", vm.id, "err", budgetError(err, vm.budget))
			}
		})
		if !ok && vm.ctx.Err() == nil {
			e.logger.Warn("script queue full, dropping timer", "script", vm.id)
		}
	})
	context.AfterFunc(vm.ctx, func() { timer.Stop() })
	return 0
}

// zigbee.every(spec, fn) runs fn on a cron schedule ("*/5 * * * *",
// "@every 30s").
func zigbeeEvery(L *lua.LState, vm *scriptVM, e *Engine) int {
	spec := L.CheckString(1)
	fn := L.CheckFunction(2)
	_, err := vm.cron.AddFunc(spec, func() {
		ok := vm.enqueue(func() {
			if err := vm.call(fn); err != nil {
				e.logger.Error("scheduled callback", "script", vm.id, "spec", spec, "err", budgetError(err, vm.budget))
			}
		})
		if !ok && vm.ctx.Err() == nil {
			e.logger.Warn("script queue full, dropping schedule", "script", vm.id, "spec", spec)
		}
	})
	if err != nil {
		L.ArgError(1, "invalid schedule: "+err.Error())
	}
	return 0
}
