package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/shadowd/server/internal/geom"
	"github.com/shadowd/server/internal/illusion"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Lua hooks looked up after loading. Both are optional.
const (
	fnLight  = "shadow_light"  // shadow_light(x, y, z, base) -> level
	fnExempt = "shadow_exempt" // shadow_exempt({id, name, mode, x, y, z}) -> bool
)

// Engine wraps one gopher-lua VM holding the apparition hooks. The scan
// goroutine and the game loop both call into it, so every VM access holds mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	dir string
	log *zap.Logger
}

// NewEngine creates a VM and loads every .lua file under scriptsDir/shadow.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := &Engine{dir: scriptsDir, log: log}
	vm, err := e.load()
	if err != nil {
		return nil, err
	}
	e.vm = vm
	return e, nil
}

func (e *Engine) load() (*lua.LState, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("MAX_LIGHT", lua.LNumber(15))

	dir := filepath.Join(e.dir, "shadow")
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		vm.Close()
		return nil, fmt.Errorf("read scripts %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := vm.DoFile(path); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return vm, nil
}

// Reload rebuilds the VM from disk. The old VM stays active on error.
func (e *Engine) Reload() error {
	vm, err := e.load()
	if err != nil {
		return err
	}
	e.mu.Lock()
	old := e.vm
	e.vm = vm
	e.mu.Unlock()
	old.Close()
	return nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// Hooks reports which optional hooks the loaded scripts define.
func (e *Engine) Hooks() (light, exempt bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.GetGlobal(fnLight) != lua.LNil, e.vm.GetGlobal(fnExempt) != lua.LNil
}

// call invokes a global with one return value. Missing functions report
// ok=false without logging.
func (e *Engine) call(name string, args ...lua.LValue) (ret lua.LValue, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return lua.LNil, false
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		e.log.Error("lua "+name+" error", zap.Error(err))
		return lua.LNil, false
	}
	ret = e.vm.Get(-1)
	e.vm.Pop(1)
	return ret, true
}

// Light wraps base with the shadow_light hook.
func (e *Engine) Light(base illusion.LightSampler) illusion.LightSampler {
	return &scriptedLight{e: e, base: base}
}

type scriptedLight struct {
	e    *Engine
	base illusion.LightSampler
}

// LightAt lets the script adjust the table's level. Non-numeric or NaN
// results and script errors keep the base level.
func (l *scriptedLight) LightAt(p geom.Vec3) int {
	base := l.base.LightAt(p)
	ret, ok := l.e.call(fnLight, lua.LNumber(p.X), lua.LNumber(p.Y), lua.LNumber(p.Z), lua.LNumber(base))
	if !ok {
		return base
	}
	n, isNum := ret.(lua.LNumber)
	if !isNum {
		return base
	}
	f := float64(n)
	if math.IsNaN(f) {
		return base
	}
	return int(geom.Clamp(f, 0, 15))
}

// IsExempt runs the shadow_exempt hook. Scripts without it exempt nobody.
func (e *Engine) IsExempt(o illusion.Observer) bool {
	e.mu.Lock()
	t := e.vm.NewTable()
	e.mu.Unlock()
	t.RawSetString("id", lua.LNumber(o.ID))
	t.RawSetString("name", lua.LString(o.Name))
	t.RawSetString("mode", lua.LString(o.Mode))
	t.RawSetString("x", lua.LNumber(o.Feet.X))
	t.RawSetString("y", lua.LNumber(o.Feet.Y))
	t.RawSetString("z", lua.LNumber(o.Feet.Z))

	ret, ok := e.call(fnExempt, t)
	return ok && lua.LVAsBool(ret)
}
