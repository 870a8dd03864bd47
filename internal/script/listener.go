// Package script runs notification listeners written in Lua.
//
// A script defines a global on_notification function and may declare
// which interfaces it implements, a subscription and an affinity:
//
//	interfaces   = { "transaction", "exception" }
//	subscription = "order.*"
//	affinity     = "blocking"
//
//	function on_notification(n)
//	  if n.action_name == "transaction rolled back" then
//	    log("rollback of " .. n.resource)
//	  end
//	end
//
// The notification is passed as a table with the fields id, type, action,
// action_name, resource, context, timestamp and source. Returning false
// (optionally followed by a message) or raising an error fails the
// delivery.
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries, and each call is bounded by a timeout.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify"
	"github.com/dshills/herald/internal/notify/pool"
)

// DefaultTimeout bounds a single on_notification call.
const DefaultTimeout = 2 * time.Second

// HandlerName is the global function every script must define.
const HandlerName = "on_notification"

// Errors returned by script listeners.
var (
	// ErrClosed is returned when a closed listener is invoked.
	ErrClosed = errors.New("script listener is closed")

	// ErrNoHandler is returned when a script lacks on_notification.
	ErrNoHandler = errors.New("script does not define " + HandlerName)
)

// Error wraps a failure raised by a script.
type Error struct {
	Script string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %v", e.Script, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Listener is a notify.Listener backed by a Lua state. Calls are
// serialized; a gopher-lua state is single-threaded.
type Listener struct {
	name     string
	registry *notification.Registry
	logger   *zap.Logger
	timeout  time.Duration

	mu     sync.Mutex
	L      *lua.LState
	fn     *lua.LFunction
	closed bool

	ifaces       []*notification.Interface
	subscription string
	affinity     pool.Affinity
}

// Option configures a Listener.
type Option func(*Listener)

// WithTimeout bounds each on_notification call.
func WithTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger behind the script's log function.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Load reads and runs the script at path.
func Load(path string, reg *notification.Registry, opts ...Option) (*Listener, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	return LoadString(filepath.Base(path), string(code), reg, opts...)
}

// LoadString runs code as a script named name.
func LoadString(name, code string, reg *notification.Registry, opts ...Option) (*Listener, error) {
	l := &Listener{
		name:     name,
		registry: reg,
		logger:   zap.NewNop(),
		timeout:  DefaultTimeout,
		affinity: pool.Lite,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("script", name))

	l.L = newSandbox()
	l.L.SetGlobal("log", l.L.NewFunction(l.luaLog))

	if err := l.run(func() error { return l.L.DoString(code) }); err != nil {
		l.L.Close()
		return nil, &Error{Script: name, Err: err}
	}
	if err := l.readDeclarations(); err != nil {
		l.L.Close()
		return nil, &Error{Script: name, Err: err}
	}
	return l, nil
}

// newSandbox opens only the safe standard libraries.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// run executes fn with the call timeout, converting panics to errors.
func (l *Listener) run(fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	l.L.SetContext(ctx)
	defer l.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (l *Listener) readDeclarations() error {
	fn, ok := l.L.GetGlobal(HandlerName).(*lua.LFunction)
	if !ok {
		return ErrNoHandler
	}
	l.fn = fn

	switch v := l.L.GetGlobal("interfaces").(type) {
	case *lua.LTable:
		var err error
		v.ForEach(func(_, item lua.LValue) {
			if err != nil {
				return
			}
			err = l.addInterface(item.String())
		})
		if err != nil {
			return err
		}
	case lua.LString:
		if err := l.addInterface(string(v)); err != nil {
			return err
		}
	case *lua.LNilType:
	default:
		return fmt.Errorf("interfaces must be a string or a list, got %s", v.Type())
	}

	if v, ok := l.L.GetGlobal("subscription").(lua.LString); ok {
		l.subscription = strings.TrimSpace(string(v))
	}
	if v, ok := l.L.GetGlobal("affinity").(lua.LString); ok {
		a, err := pool.ParseAffinity(string(v))
		if err != nil {
			return err
		}
		l.affinity = a
	}
	return nil
}

func (l *Listener) addInterface(name string) error {
	i, ok := l.registry.LookupInterface(name)
	if !ok {
		return &notify.NameError{Kind: "interface", Name: name}
	}
	l.ifaces = append(l.ifaces, i)
	return nil
}

func (l *Listener) luaLog(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	l.logger.Info(strings.Join(parts, " "))
	return 0
}

// Name returns the script name.
func (l *Listener) Name() string {
	return l.name
}

// Subscription returns the subscription the script declared, if any.
func (l *Listener) Subscription() string {
	return l.subscription
}

// Pair returns the listener with its declared subscription.
func (l *Listener) Pair() notify.Pair {
	return notify.NewPair(l, l.subscription)
}

// Interfaces implements notify.Listener.
func (l *Listener) Interfaces() []*notification.Interface {
	return l.ifaces
}

// Affinity implements notify.AffinityDeclarer.
func (l *Listener) Affinity() pool.Affinity {
	return l.affinity
}

// OnNotification implements notify.Listener.
func (l *Listener) OnNotification(n notification.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	arg := l.toTable(n)
	err := l.run(func() error {
		return l.L.CallByParam(lua.P{Fn: l.fn, NRet: 2, Protect: true}, arg)
	})
	if err != nil {
		return &Error{Script: l.name, Err: err}
	}

	ok, msg := l.L.Get(-2), l.L.Get(-1)
	l.L.Pop(2)
	if b, isBool := ok.(lua.LBool); isBool && !bool(b) {
		reason := HandlerName + " returned false"
		if msg != lua.LNil {
			reason = msg.String()
		}
		return &Error{Script: l.name, Err: errors.New(reason)}
	}
	return nil
}

func (l *Listener) toTable(n notification.Notification) *lua.LTable {
	t := l.L.NewTable()
	t.RawSetString("id", lua.LString(n.ID()))
	t.RawSetString("type", lua.LString(n.Type().String()))
	t.RawSetString("action", lua.LNumber(n.Action()))
	if name := l.registry.ActionName(n.Action()); name != "" {
		t.RawSetString("action_name", lua.LString(name))
	}
	if rid := n.ResourceIdentifier(); rid != "" {
		t.RawSetString("resource", lua.LString(rid))
	}
	if ctx := n.ContextID(); ctx != "" {
		t.RawSetString("context", lua.LString(ctx))
	}
	t.RawSetString("timestamp", lua.LNumber(n.Timestamp().UnixMilli()))
	switch src := n.Source().(type) {
	case string:
		t.RawSetString("source", lua.LString(src))
	case fmt.Stringer:
		t.RawSetString("source", lua.LString(src.String()))
	}
	return t
}

// Close releases the Lua state. Later deliveries fail with ErrClosed.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.L.Close()
}
