// Package handler routes platform events to the moderation workflow.
// Events about one member are handled one at a time, in arrival order.
package handler

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/crash"
	"guild-warden/internal/logger"
)

// ErrStopped is returned by Submit after Stop
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher fans events out to a fixed set of shard workers
type Dispatcher struct {
	router  *Router
	shards  []chan Event
	timeout time.Duration
	stats   *Stats

	mu      sync.RWMutex
	stopped bool
	pending sync.WaitGroup
	workers sync.WaitGroup
}

// NewDispatcher creates workers shards with queueSize buffered events each.
// timeout bounds the handling of one event.
func NewDispatcher(router *Router, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		router:  router,
		shards:  make([]chan Event, workers),
		timeout: timeout,
		stats:   newStats(),
	}
	for i := range d.shards {
		d.shards[i] = make(chan Event, queueSize)
	}
	return d
}

func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// Start launches the shard workers; they run until Stop
func (d *Dispatcher) Start(ctx context.Context) {
	for i, shard := range d.shards {
		d.workers.Add(1)
		go d.work(ctx, i, shard)
	}
	logger.Infof("Dispatcher started with %d shards", len(d.shards))
}

func (d *Dispatcher) work(ctx context.Context, id int, shard <-chan Event) {
	defer d.workers.Done()
	for ev := range shard {
		d.handle(ctx, id, ev)
	}
}

func (d *Dispatcher) handle(ctx context.Context, shard int, ev Event) {
	defer d.pending.Done()
	d.stats.active.Add(1)
	defer d.stats.active.Add(-1)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.stats.count(ev)
	err := crash.Guard("dispatcher", func() error {
		return d.router.Route(ctx, ev)
	})
	if err != nil {
		d.stats.errors.Add(1)
		logger.Errorf("Shard %d failed to handle %T: %v", shard, ev, err)
	}
}

// Submit queues ev on the shard of its key. It blocks while that shard is full.
func (d *Dispatcher) Submit(ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.stats.dropped.Add(1)
		return ErrStopped
	}
	d.pending.Add(1)
	d.shards[d.shardOf(ev.Key())] <- ev
	return nil
}

func (d *Dispatcher) shardOf(guildID, userID snowflake.ID) int {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(guildID))
	binary.LittleEndian.PutUint64(buf[8:], uint64(userID))
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Wait blocks until every submitted event is handled
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Stop refuses new events, drains the queues and waits for the workers to exit
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, shard := range d.shards {
		close(shard)
	}
	d.mu.Unlock()
	d.workers.Wait()
	logger.Info("Dispatcher stopped")
}
