package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/propsrv/internal/property"
)

// Engine wraps a single gopher-lua VM and runs property handlers.
// Single-goroutine access only (tick loop).
type Engine struct {
	vm       *lua.LState
	log      *zap.Logger
	handlers []handler // token-1
	byName   map[string]property.HandlerToken
	resolve  Resolver
}

type handler struct {
	name string
	fn   *lua.LFunction
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory, then from each of its subdirectories in name order.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:     vm,
		log:    log,
		byName: make(map[string]property.HandlerToken),
	}
	e.registerAPI()

	if scriptsDir == "" {
		return e, nil
	}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	entries, err := os.ReadDir(scriptsDir)
	if err != nil && !os.IsNotExist(err) {
		vm.Close()
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := e.loadDir(filepath.Join(scriptsDir, entry.Name())); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", entry.Name(), err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
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
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source, for inline schema snippets and tests.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Bind resolves a global Lua function to a handler token. Binding the same
// name twice returns the same token.
func (e *Engine) Bind(funcName string) (property.HandlerToken, error) {
	if tok, ok := e.byName[funcName]; ok {
		return tok, nil
	}
	fn, ok := e.vm.GetGlobal(funcName).(*lua.LFunction)
	if !ok {
		return 0, fmt.Errorf("lua function %s not found", funcName)
	}
	e.handlers = append(e.handlers, handler{name: funcName, fn: fn})
	tok := property.HandlerToken(len(e.handlers))
	e.byName[funcName] = tok
	return tok, nil
}

// HandlerName returns the Lua function bound to a token.
func (e *Engine) HandlerName(tok property.HandlerToken) string {
	if tok == 0 || int(tok) > len(e.handlers) {
		return ""
	}
	return e.handlers[tok-1].name
}

// Invoke implements property.Invoker. Getters are called as fn(self) and
// must return the value; setters as fn(self, old) for stored properties and
// fn(self, value) for virtual ones.
func (e *Engine) Invoke(call property.Call) ([]byte, error) {
	if call.Token == 0 || int(call.Token) > len(e.handlers) {
		return nil, fmt.Errorf("unknown handler token %d", call.Token)
	}
	h := e.handlers[call.Token-1]
	prop := call.Property

	args := []lua.LValue{e.selfValue(call.Props)}
	nret := 0
	switch call.Kind {
	case property.CallGet:
		nret = 1
	case property.CallSet:
		if prop.IsVirtual() {
			args = append(args, e.toLua(prop, call.NewValue))
		} else {
			args = append(args, e.toLua(prop, call.OldValue))
		}
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      h.fn,
		NRet:    nret,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua property handler error",
			zap.String("handler", h.name),
			zap.Stringer("property", prop),
			zap.Stringer("call", call.Kind),
			zap.Error(err),
		)
		return nil, fmt.Errorf("lua %s: %w", h.name, err)
	}
	if nret == 0 {
		return nil, nil
	}

	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	data, err := e.fromLua(prop, ret)
	if err != nil {
		return nil, fmt.Errorf("lua %s returned %s: %w", h.name, ret.Type(), err)
	}
	return data, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
