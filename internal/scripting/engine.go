// Package scripting loads entity classes written in Lua and registers them
// into the spawn factory.
//
// A script declares classes with define_class:
//
//	define_class{
//	    type  = "CryptLord",
//	    kind  = "mob",
//	    name  = "Lord of the Crypt",
//	    props = { hp = 5000 },
//	    on_create = function(e)
//	        return { phase = "dormant" }
//	    end,
//	}
//
// on_create is optional. It receives {object_id, class, name} and may return
// a table of properties to set on the new entity.
package scripting

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/udisondev/instancer/internal/spawn"
)

// APIVersion is exposed to scripts as the API_VERSION global.
const APIVersion = 1

// Engine wraps a single gopher-lua VM. The VM is not goroutine-safe, so
// every call into it goes through mu.
type Engine struct {
	mu      sync.Mutex
	vm      *lua.LState
	classes []scriptedClass
	closed  bool
}

type scriptedClass struct {
	class    spawn.Class
	onCreate *lua.LFunction
	file     string
}

// NewEngine creates a Lua engine and loads all *.lua files from dir, in
// name order. A missing directory loads nothing.
func NewEngine(dir string) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	e := &Engine{vm: vm}
	vm.SetGlobal("define_class", vm.NewFunction(e.defineClass))

	if err := e.loadDir(dir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
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
		before := len(e.classes)
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		for i := before; i < len(e.classes); i++ {
			e.classes[i].file = path
		}
		slog.Debug("loaded lua script", "file", path, "classes", len(e.classes)-before)
	}
	return nil
}

// defineClass implements define_class{...}.
func (e *Engine) defineClass(L *lua.LState) int {
	tbl := L.CheckTable(1)

	typ := lua.LVAsString(tbl.RawGetString("type"))
	if typ == "" {
		L.ArgError(1, "type is required")
		return 0
	}

	kindName := lua.LVAsString(tbl.RawGetString("kind"))
	kind, ok := spawn.ParseKind(kindName)
	if !ok {
		L.ArgError(1, fmt.Sprintf("class %s: unknown kind %q", typ, kindName))
		return 0
	}

	sc := scriptedClass{class: spawn.Class{
		Type: typ,
		Kind: kind,
		Name: lua.LVAsString(tbl.RawGetString("name")),
	}}

	if props, ok := tbl.RawGetString("props").(*lua.LTable); ok {
		sc.class.Props = tableToMap(props)
	}
	switch fn := tbl.RawGetString("on_create").(type) {
	case *lua.LFunction:
		sc.onCreate = fn
	case *lua.LNilType:
	default:
		L.ArgError(1, fmt.Sprintf("class %s: on_create must be a function", typ))
		return 0
	}

	e.classes = append(e.classes, sc)
	return 0
}

// ClassCount returns the number of classes the scripts declared.
func (e *Engine) ClassCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.classes)
}

// Register registers every scripted class into f. Stops at the first
// registration error (e.g. a script redefining a built-in class).
func (e *Engine) Register(f *spawn.Factory) (int, error) {
	e.mu.Lock()
	classes := e.classes
	e.mu.Unlock()

	for i, sc := range classes {
		c := sc.class
		if sc.onCreate != nil {
			c.Init = e.initHook(sc.class.Type, sc.onCreate)
		}
		if err := f.Register(c); err != nil {
			return i, fmt.Errorf("register scripted class from %s: %w", sc.file, err)
		}
	}

	slog.Info("scripted classes registered", "count", len(classes))
	return len(classes), nil
}

// initHook wraps a Lua on_create function as spawn.Class.Init.
// Script errors are logged; the entity keeps its class properties.
func (e *Engine) initHook(classType string, fn *lua.LFunction) func(*spawn.Entity) {
	return func(ent *spawn.Entity) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return
		}

		arg := e.vm.NewTable()
		arg.RawSetString("object_id", lua.LNumber(ent.ObjectID()))
		arg.RawSetString("class", lua.LString(ent.ClassType()))
		arg.RawSetString("name", lua.LString(ent.Name()))

		if err := e.vm.CallByParam(lua.P{
			Fn:      fn,
			NRet:    1,
			Protect: true,
		}, arg); err != nil {
			slog.Warn("lua on_create failed", "class", classType, "objectID", ent.ObjectID(), "error", err)
			return
		}

		ret := e.vm.Get(-1)
		e.vm.Pop(1)
		if props, ok := ret.(*lua.LTable); ok {
			for k, v := range tableToMap(props) {
				ent.SetProp(k, v)
			}
		}
	}
}

// Close releases the VM. Init hooks become no-ops afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.vm.Close()
}

func tableToMap(t *lua.LTable) map[string]string {
	m := make(map[string]string, t.Len())
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = v.String()
	})
	return m
}
