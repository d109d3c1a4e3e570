package tls

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
)

// DefaultFactoryName is the factory plugin used when a snapshot names none.
const DefaultFactoryName = "default"

// Factory builds server TLS contexts and hands out engines bound to the
// current one. Implementations must allow CreateServerEngine to run
// concurrently with Update.
type Factory interface {
	// Initialize builds the first context from c.
	Initialize(c SSLConfiguration) error

	// CreateServerEngine returns a server-side TLS connection over conn
	// bound to the current context.
	CreateServerEngine(conn net.Conn) (*tls.Conn, error)

	// Update rebuilds the context if c or the material it references has
	// changed. It reports whether a new context was published. On error the
	// current context stays in service.
	Update(c SSLConfiguration) (bool, error)
}

// FactoryConstructor creates a Factory from the plugin parameter string.
type FactoryConstructor func(params string, logger *slog.Logger) (Factory, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]FactoryConstructor{}
)

func init() {
	RegisterFactory(DefaultFactoryName, func(_ string, logger *slog.Logger) (Factory, error) {
		return NewFileFactory(logger), nil
	})
}

// RegisterFactory makes a factory available under name. Registering the same
// name twice replaces the earlier constructor.
func RegisterFactory(name string, fn FactoryConstructor) {
	if fn == nil {
		panic("tls: RegisterFactory with nil constructor")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// NewFactory instantiates the factory registered under name. An empty name
// selects DefaultFactoryName.
func NewFactory(name, params string, logger *slog.Logger) (Factory, error) {
	if name == "" {
		name = DefaultFactoryName
	}
	registryMu.RLock()
	fn, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownFactory, name, Factories())
	}
	return fn(params, logger)
}

// Factories returns the registered factory names, sorted.
func Factories() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
