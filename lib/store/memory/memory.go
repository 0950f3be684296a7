// Package memory is a simple in-memory store backend. It will not scale to
// multiple formshield instances behind one load balancer; use the valkey
// backend for that.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/uvensys/formshield/lib/store"
)

type factory struct{}

func (factory) Build(ctx context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(ctx), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired() bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

type impl struct {
	mu   sync.RWMutex
	data map[string]entry
}

func (i *impl) Delete(_ context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.data[key]; !ok {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	delete(i.data, key)
	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	ent, ok := i.data[key]
	i.mu.RUnlock()

	if !ok || ent.expired() {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return ent.value, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	var expires time.Time
	if expiry > 0 {
		expires = time.Now().Add(expiry)
	}

	i.mu.Lock()
	i.data[key] = entry{value: value, expires: expires}
	i.mu.Unlock()
	return nil
}

func (i *impl) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			i.cleanup()
		}
	}
}

func (i *impl) cleanup() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for key, ent := range i.data {
		if ent.expired() {
			delete(i.data, key)
		}
	}
}

// New creates a simple in-memory store.
func New(ctx context.Context) store.Interface {
	result := &impl{
		data: map[string]entry{},
	}

	go result.cleanupThread(ctx)

	return result
}
