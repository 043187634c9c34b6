package services

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// CoreServices lists the services the server always mounts, in mount order.
var CoreServices = []string{"wellknown", "ocm", "api"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register registers a new HTTP service constructor by name.
// This is typically called from init() in service packages.
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor for a registered service, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the names of all registered services, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named services in order. A name with no registered
// constructor is an error; on failure services built so far are closed.
func Build(names []string, d *Deps, log *slog.Logger) ([]Service, error) {
	log = logutil.NoopIfNil(log)
	built := make([]Service, 0, len(names))
	for _, name := range names {
		newFunc := Get(name)
		if newFunc == nil {
			closeAll(built)
			return nil, fmt.Errorf("service %q is not registered", name)
		}
		svc, err := newFunc(d, log.With("service", name))
		if err != nil {
			closeAll(built)
			return nil, fmt.Errorf("build service %q: %w", name, err)
		}
		built = append(built, svc)
	}
	return built, nil
}

func closeAll(svcs []Service) {
	for i := len(svcs) - 1; i >= 0; i-- {
		_ = svcs[i].Close()
	}
}

// resetRegistry is for testing only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
