package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUndefinedMethod is returned by Call when no macro, component or page provides the action.
var ErrUndefinedMethod = errors.New("undefined method")

// Macros is a concurrency-safe registry of named browser actions.
type Macros struct {
	mu    sync.RWMutex
	funcs map[string]ExtensionFunc
}

// DefaultMacros is shared by every browser created without WithMacros.
var DefaultMacros = NewMacros()

// NewMacros creates an empty registry.
func NewMacros() *Macros {
	return &Macros{funcs: make(map[string]ExtensionFunc)}
}

// Register adds or replaces the macro name.
func (m *Macros) Register(name string, fn ExtensionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[name] = fn
}

// Has reports whether name is registered.
func (m *Macros) Has(name string) bool {
	_, ok := m.lookup(name)
	return ok
}

// Flush removes every macro.
func (m *Macros) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = make(map[string]ExtensionFunc)
}

func (m *Macros) lookup(name string) (ExtensionFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.funcs[name]
	return fn, ok
}

// Macro registers fn on the browser's macro registry.
func (b *Browser) Macro(name string, fn ExtensionFunc) {
	b.macros.Register(name, fn)
}

// Call runs the action name. Macros are tried first, then the scope's
// component, then the current page.
func (b *Browser) Call(ctx context.Context, name string, args ...interface{}) error {
	if fn, ok := b.macros.lookup(name); ok {
		return fn(ctx, b, args...)
	}
	if ext, ok := b.component.(Extension); ok {
		if fn, ok := ext.Methods()[name]; ok {
			return fn(ctx, b, args...)
		}
	}
	if ext, ok := b.page.(Extension); ok {
		if fn, ok := ext.Methods()[name]; ok {
			return fn(ctx, b, args...)
		}
	}
	return fmt.Errorf("call to undefined method [%s]: %w", name, ErrUndefinedMethod)
}
