// Package keylock serializes work on one (guild, member) pair.
package keylock

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Locker hands out exclusive locks by key. The returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemberKey is the lock key shared by every operation touching one member of one guild
func MemberKey(guildID, userID snowflake.ID) string {
	return fmt.Sprintf("member:%d:%d", guildID, userID)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Memory is an in-process Locker
type Memory struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*entry)}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *Memory) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Held returns the number of keys currently locked or waited on
func (m *Memory) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
