package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/pushtalk/internal/inject"
	"github.com/MrWong99/pushtalk/pkg/audio"
	"github.com/MrWong99/pushtalk/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is a name → constructor table for one provider kind.
type factories[T any] map[string]func(ProviderEntry) (T, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stt    factories[stt.Engine]
	audio  factories[audio.Capture]
	output factories[inject.Injector]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:    make(factories[stt.Engine]),
		audio:  make(factories[audio.Capture]),
		output: make(factories[inject.Injector]),
	}
}

// RegisterSTT registers a recognition engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterAudio registers an audio capture backend factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Capture, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterOutput registers a text injection factory under name.
func (r *Registry) RegisterOutput(name string, factory func(ProviderEntry) (inject.Injector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output[name] = factory
}

// CreateSTT instantiates a recognition engine using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAudio instantiates an audio capture backend using the factory
// registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Capture, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateOutput instantiates a text injector using the factory registered
// under entry.Name.
func (r *Registry) CreateOutput(entry ProviderEntry) (inject.Injector, error) {
	r.mu.RLock()
	factory, ok := r.output[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted provider names registered for kind ("stt",
// "audio" or "output").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "audio":
		names = keys(r.audio)
	case "output":
		names = keys(r.output)
	}
	slices.Sort(names)
	return names
}

func keys[T any](f factories[T]) []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}
