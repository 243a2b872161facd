package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/speechgraph/core/pkg/cache"
	"github.com/speechgraph/core/pkg/objectstore"
	"github.com/speechgraph/core/pkg/provider/llm"
	"github.com/speechgraph/core/pkg/provider/stt"
	"github.com/speechgraph/core/pkg/warehouse"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	stt         map[string]func(ProviderEntry) (stt.Provider, error)
	llm         map[string]func(ProviderEntry) (llm.Provider, error)
	cacheStore  map[string]func(ProviderEntry) (cache.Store, error)
	objectStore map[string]func(ProviderEntry) (objectstore.Store, error)
	warehouse   map[string]func(ProviderEntry) (warehouse.Writer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:         make(map[string]func(ProviderEntry) (stt.Provider, error)),
		llm:         make(map[string]func(ProviderEntry) (llm.Provider, error)),
		cacheStore:  make(map[string]func(ProviderEntry) (cache.Store, error)),
		objectStore: make(map[string]func(ProviderEntry) (objectstore.Store, error)),
		warehouse:   make(map[string]func(ProviderEntry) (warehouse.Writer, error)),
	}
}

// RegisterSTT registers a speech recognizer factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterCache registers a graph cache store factory under name.
func (r *Registry) RegisterCache(name string, factory func(ProviderEntry) (cache.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheStore[name] = factory
}

// RegisterObjectStore registers a blob store factory under name.
func (r *Registry) RegisterObjectStore(name string, factory func(ProviderEntry) (objectstore.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objectStore[name] = factory
}

// RegisterWarehouse registers a warehouse writer factory under name.
func (r *Registry) RegisterWarehouse(name string, factory func(ProviderEntry) (warehouse.Writer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warehouse[name] = factory
}

// CreateSTT instantiates a speech recognizer using the factory registered
// under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCache instantiates a graph cache store using the factory registered
// under entry.Name.
func (r *Registry) CreateCache(entry ProviderEntry) (cache.Store, error) {
	r.mu.RLock()
	factory, ok := r.cacheStore[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: cache/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateObjectStore instantiates a blob store using the factory registered
// under entry.Name.
func (r *Registry) CreateObjectStore(entry ProviderEntry) (objectstore.Store, error) {
	r.mu.RLock()
	factory, ok := r.objectStore[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: object_store/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateWarehouse instantiates a warehouse writer using the factory
// registered under entry.Name.
func (r *Registry) CreateWarehouse(entry ProviderEntry) (warehouse.Writer, error) {
	r.mu.RLock()
	factory, ok := r.warehouse[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: warehouse/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
