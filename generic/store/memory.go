// Package store provides in-process implementations of the substrate contracts.
package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// =============================================================================
// MEMORY STORE - In-memory versioned KV (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	docs map[string]entry
}

type entry struct {
	value   []byte
	version generic.Version
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, generic.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.docs[key]
	if !ok {
		return nil, 0, nil
	}
	return bytes.Clone(e.value), e.version, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, expected generic.Version) (generic.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.docs[key].version
	if expected != generic.AnyVersion && expected != current {
		return current, &generic.VersionConflictError{Key: key, Expected: expected, Actual: current}
	}
	next := current + 1
	m.docs[key] = entry{value: bytes.Clone(value), version: next}
	return next, nil
}

// Reset drops every document.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]entry)
}

// =============================================================================
// KEYED MUTEX - Locker for a single process
// =============================================================================

// KeyedMutex hands out one channel-backed lock per key. Channels are used
// instead of sync.Mutex so that waiters can give up when ctx is canceled.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch      chan struct{}
	waiters int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (generic.Unlock, error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.waiters++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l, false)
		return nil, generic.ErrLockNotObtained
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.release(key, l, true) })
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock, held bool) {
	if held {
		<-l.ch
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	l.waiters--
	if l.waiters == 0 {
		delete(k.locks, key)
	}
}

// =============================================================================
// BROADCASTER - In-process Notifier + Subscriber
// =============================================================================

// Broadcaster fans events out to every live subscriber. Slow subscribers
// drop events rather than block publishers.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan generic.Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan generic.Event)}
}

func (b *Broadcaster) Publish(_ context.Context, event generic.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, fn func(generic.Event)) error {
	ch := make(chan generic.Event, 32)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			fn(ev)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
