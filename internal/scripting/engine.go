package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/netsync/internal/data"
	"github.com/l1jgo/netsync/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM holding the predicted-action
// eligibility scripts. Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every script under scriptsDir
// (top level first, then replication/). A missing directory is not an error.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	for _, dir := range []string{scriptsDir, filepath.Join(scriptsDir, "replication")} {
		if err := e.loadDir(dir); err != nil {
			e.vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	return &Engine{vm: vm, log: log}
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("已載入 Lua 腳本", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source in the engine's VM.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// Bind resolves a prefab's check functions once, at kind registration.
// Prefabs without scripted checks get no Eligibility (flags decide alone).
func (e *Engine) Bind(p *data.Prefab) world.Eligibility {
	if p.SpawnCheck == "" && p.DespawnCheck == "" {
		return nil
	}
	c := &scriptCheck{e: e, prefab: p.ID}
	c.spawn = e.lookup(p, p.SpawnCheck)
	c.despawn = e.lookup(p, p.DespawnCheck)
	return c
}

// HasFunction reports whether name is a loaded global function.
func (e *Engine) HasFunction(name string) bool {
	return e.vm.GetGlobal(name).Type() == lua.LTFunction
}

// lookup returns the named global function. A name that does not resolve
// to a function yields LNil, which denies the action.
func (e *Engine) lookup(p *data.Prefab, name string) lua.LValue {
	if name == "" {
		return nil
	}
	fn := e.vm.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		e.log.Error("Lua 檢查函式不存在",
			zap.Uint16("prefab", p.ID), zap.String("func", name))
		return lua.LNil
	}
	return fn
}

type scriptCheck struct {
	e       *Engine
	prefab  uint16
	spawn   lua.LValue // nil = no scripted check
	despawn lua.LValue
}

func (c *scriptCheck) CanPredictSpawn(conn *world.Connection, o *world.NetworkObject) bool {
	return c.e.call(c.spawn, "spawn", conn, o)
}

func (c *scriptCheck) CanPredictDespawn(conn *world.Connection, o *world.NetworkObject) bool {
	return c.e.call(c.despawn, "despawn", conn, o)
}

// call runs fn(ctx) and reads a boolean verdict. Script errors deny.
func (e *Engine) call(fn lua.LValue, action string, conn *world.Connection, o *world.NetworkObject) bool {
	if fn == nil {
		return true
	}
	if fn == lua.LNil {
		return false
	}
	ctx := e.buildContext(action, conn, o)
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, ctx); err != nil {
		e.log.Error("Lua 資格檢查錯誤",
			zap.String("action", action),
			zap.Uint16("prefab", uint16(o.TypeTag())),
			zap.Error(err))
		return false
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	return lua.LVAsBool(ret)
}

func (e *Engine) buildContext(action string, conn *world.Connection, o *world.NetworkObject) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("action", lua.LString(action))

	c := e.vm.NewTable()
	c.RawSetString("id", lua.LNumber(conn.ID))
	c.RawSetString("is_local", lua.LBool(conn.IsLocal))
	c.RawSetString("owned", lua.LNumber(len(conn.Owned())))
	t.RawSetString("conn", c)

	obj := e.vm.NewTable()
	obj.RawSetString("prefab", lua.LNumber(o.TypeTag()))
	if o.Kind != nil {
		obj.RawSetString("name", lua.LString(o.Kind.Prefab.Name))
	}
	obj.RawSetString("id", lua.LNumber(o.ID))
	obj.RawSetString("owner", lua.LNumber(o.OwnerID()))
	obj.RawSetString("is_scene", lua.LBool(o.IsScene))
	obj.RawSetString("scene_id", lua.LNumber(o.SceneID))
	obj.RawSetString("payload_len", lua.LNumber(len(o.Payload)))
	if o.Parent != nil {
		obj.RawSetString("parent", lua.LNumber(o.Parent.ID))
	}
	pos := e.vm.NewTable()
	pos.RawSetString("x", lua.LNumber(o.Transform.Position[0]))
	pos.RawSetString("y", lua.LNumber(o.Transform.Position[1]))
	pos.RawSetString("z", lua.LNumber(o.Transform.Position[2]))
	obj.RawSetString("pos", pos)
	t.RawSetString("object", obj)
	return t
}
