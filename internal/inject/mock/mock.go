// Package mock provides a test double for [inject.Injector].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pushtalk/internal/inject"
)

// Injector is a mock implementation of inject.Injector. It records every
// text it is asked to type.
type Injector struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Type call.
	Err error

	// Texts records the text of every Type call, including failed ones.
	Texts []string
}

// Type records text and returns Err.
func (i *Injector) Type(_ context.Context, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Texts = append(i.Texts, text)
	return i.Err
}

// Typed returns a copy of the recorded texts.
func (i *Injector) Typed() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.Texts...)
}

var _ inject.Injector = (*Injector)(nil)
