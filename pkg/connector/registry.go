package connector

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Factory creates a connector instance. A nil logger means discard.
type Factory func(*slog.Logger) Connector

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
	kinds      = make(map[string]Kind)
)

// Kind classifies a backend as file- or database-backed.
type Kind string

// Backend kinds.
const (
	KindFile     Kind = "file"
	KindDatabase Kind = "database"
)

// Register adds a connector factory to the registry under one or more names.
// Called by connector implementations in their init() functions.
func Register(kind Kind, factory Factory, names ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, name := range names {
		key := strings.ToLower(name)
		registry[key] = factory
		kinds[key] = kind
	}
}

// Get retrieves a connector factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// KindOf returns the kind of a registered backend.
func KindOf(name string) (Kind, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	k, ok := kinds[strings.ToLower(name)]
	return k, ok
}

// New creates a connector instance for cfg.Type.
func New(cfg core.ConnectorConfig, logger *slog.Logger) (Connector, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("connector type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownConnectorError{
			Type:      cfg.Type,
			Available: List(),
		}
	}
	return factory(logger), nil
}

// List returns all registered connector names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a connector type is registered.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownConnectorError is returned when an unknown connector type is requested.
type UnknownConnectorError struct {
	Type      string
	Available []string
}

func (e *UnknownConnectorError) Error() string {
	return fmt.Sprintf("unknown connector type %q\nAvailable connectors: %v\nHint: Check data_sources[].config.type in leapquery.yaml", e.Type, e.Available)
}
