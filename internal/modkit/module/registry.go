// Package module is the bootstrap registry modules use to share ports
package module

import "sync"

// One process, one registry. A module publishes its port set while it is
// constructed; consumers resolve by name, so only publishers care about
// mount order.
var (
	mu    sync.RWMutex
	ports = map[string]any{}
)

// Register publishes a module's port set under its name
func Register(name string, p any) {
	mu.Lock()
	defer mu.Unlock()
	ports[name] = p
}

// PortsAs resolves a named port set to the requested type
func PortsAs[T any](name string) (T, bool) {
	mu.RLock()
	v, ok := ports[name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Reset clears the registry between tests
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ports = map[string]any{}
}
