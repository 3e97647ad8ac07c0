/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package iom

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/cmn/nlog"
)

// Factory constructs a Backend from its resolved, filtered settings.
// Concrete backend packages register themselves under a type name
// (e.g. "file", "buntdb", "cassandra", "s3") via RegisterFactory.
type Factory func(name string, settings map[string]string) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterFactory makes a backend type constructible by name from
// configuration. Typically called from an init() in the concrete
// backend package (fileiom, buntiom, tableiom, s3iom).
func RegisterFactory(typeName string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[typeName] = f
}

func lookupFactory(typeName string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[typeName]
	return f, ok
}

// Registry is the process-wide name -> Backend map (spec.md §4.4).
// Registration can happen before or after Start(); post-start
// registration takes the write lock.
type Registry struct {
	mu      sync.RWMutex
	started bool
	byName  map[string]Backend
	byHash  map[uint32]Backend
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Backend{}, byHash: map[uint32]Backend{}}
}

// Start marks the registry as started; subsequent Register calls take
// the write lock explicitly rather than relying on single-threaded
// startup ordering.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

// NameHash computes the stable 32-bit hash the pool layer uses to refer
// to an IOM by a compact iom_hash value (spec.md §4.4).
func NameHash(name string) uint32 { return xxhash.ChecksumString32(name) }

// Register adds a constructed Backend under name.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = b
	r.byHash[NameHash(name)] = b
	nlog.Infof("iom: registered %q (%s)", name, b.Name())
}

// Unregister removes and closes a previously-registered backend.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	b, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
		delete(r.byHash, NameHash(name))
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	nlog.Infof("iom: unregistering %q", name)
	return b.Close()
}

// Lookup returns the backend registered under name, or (nil, false).
func (r *Registry) Lookup(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byName[name]
	return b, ok
}

// LookupHash resolves a backend by its compact iom_hash.
func (r *Registry) LookupHash(h uint32) (Backend, bool) {
	if h == 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byHash[h]
	return b, ok
}

// Names returns every currently registered backend name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}

// Close unregisters and closes every backend. Called at process exit,
// in reverse order of the overall Init (spec.md §9 "Global state").
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, b := range r.byName {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.byName, name)
	}
	r.byHash = map[uint32]Backend{}
	return firstErr
}

// LoadFromConfig builds and registers every IOM named by
// "<role>.ioms" in cfg, reading "<role>.iom.<name>.type" to pick the
// factory and "<role>.iom.<name>.<setting>[.env_name]" for its settings
// (spec.md §4.4, §6).
func (r *Registry) LoadFromConfig(cfg *cmn.Config, role string) error {
	for _, name := range cfg.IOMNames(role) {
		typeName, ok := cfg.IOMType(role, name)
		if !ok {
			return cmn.NewErr(cmn.InvalidArg, "missing %s.iom.%s.type", role, name)
		}
		factory, ok := lookupFactory(typeName)
		if !ok {
			return cmn.NewErr(cmn.InvalidArg, "unknown iom type %q for %s", typeName, name)
		}
		settings := cfg.IOMSettings(role, name)
		backend, err := factory(name, settings)
		if err != nil {
			return cmn.WrapErr(cmn.IOError, err, "constructing iom %q (type %s)", name, typeName)
		}
		r.Register(name, backend)
	}
	return nil
}
