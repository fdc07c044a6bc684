package core

import "strings"

// EngineFactory builds a backend for the given stepping configuration.
// A factory returns ErrBusNotConfigured when a companion bus it needs is missing.
type EngineFactory func(cfg SteppingConfig) (Engine, error)

type engineEntry struct {
	name    string
	factory EngineFactory
}

// EngineRegistry holds the available pulse generation backends in
// registration order. Lookup is by case-insensitive name prefix so that one
// entry such as "I2S" serves a whole family of engine names.
type EngineRegistry struct {
	entries []engineEntry
}

var globalEngines = NewEngineRegistry()

// NewEngineRegistry creates an empty registry
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{}
}

// RegisterEngine adds a backend to the process-wide registry.
// Called by target code before the stepping configuration is built.
func RegisterEngine(name string, factory EngineFactory) {
	globalEngines.Register(name, factory)
}

// Engines returns the process-wide registry
func Engines() *EngineRegistry {
	return globalEngines
}

// Register adds a backend. Re-registering a name replaces its factory.
func (r *EngineRegistry) Register(name string, factory EngineFactory) {
	for i := range r.entries {
		if strings.EqualFold(r.entries[i].name, name) {
			r.entries[i].factory = factory
			return
		}
	}
	r.entries = append(r.entries, engineEntry{name: name, factory: factory})
}

// Find returns the first backend whose registered name is a prefix of name
func (r *EngineRegistry) Find(name string) (EngineFactory, string, bool) {
	for _, e := range r.entries {
		if hasPrefixFold(name, e.name) {
			return e.factory, e.name, true
		}
	}
	return nil, "", false
}

// Names lists registered backend names
func (r *EngineRegistry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Resolve builds the backend selected by cfg.Engine
func (r *EngineRegistry) Resolve(cfg SteppingConfig) (Engine, error) {
	name := cfg.Engine.String()
	factory, _, ok := r.Find(name)
	if !ok {
		return nil, &ConfigError{Op: "find engine", Name: name, Err: ErrEngineNotFound}
	}
	engine, err := factory(cfg)
	if err != nil {
		return nil, &ConfigError{Op: "create engine", Name: name, Err: err}
	}
	if engine == nil {
		return nil, &ConfigError{Op: "create engine", Name: name, Err: ErrEngineNotFound}
	}
	return engine, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
