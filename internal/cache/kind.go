package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// kindCache maps an id onto one decoded record. Absent records are cached as the
// zero value so that unconfigured guilds do not hit the store on every event.
type kindCache[T any] struct {
	kind  Kind
	load  func(ctx context.Context, id int64) (T, error)
	group singleflight.Group

	mu      sync.Mutex
	entries map[int64]T
	// loads exists only while a load of the id is running.
	loads map[int64]*loadState
}

// loadState tracks running loads of one id. generation is bumped on every
// invalidation so a load that started before it cannot store its stale result.
type loadState struct {
	generation uint64
	running    int
}

func newKindCache[T any](kind Kind, load func(ctx context.Context, id int64) (T, error)) *kindCache[T] {
	return &kindCache[T]{
		kind:    kind,
		load:    load,
		entries: make(map[int64]T),
		loads:   make(map[int64]*loadState),
	}
}

func (c *kindCache[T]) get(ctx context.Context, id int64) (T, error) {
	c.mu.Lock()
	if v, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	res, err, _ := c.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		c.mu.Lock()
		if v, ok := c.entries[id]; ok {
			c.mu.Unlock()
			return v, nil
		}
		state, ok := c.loads[id]
		if !ok {
			state = &loadState{}
			c.loads[id] = state
		}
		state.running++
		gen := state.generation
		c.mu.Unlock()

		v, err := c.load(context.WithoutCancel(ctx), id)

		c.mu.Lock()
		defer c.mu.Unlock()
		state.running--
		if state.running == 0 {
			delete(c.loads, id)
		}
		if err != nil {
			recordLoad(c.kind, "error")
			return nil, err
		}
		recordLoad(c.kind, "ok")
		if state.generation == gen {
			c.entries[id] = v
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (c *kindCache[T]) peek(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	return v, ok
}

func (c *kindCache[T]) invalidate(id int64) {
	c.mu.Lock()
	delete(c.entries, id)
	if state, ok := c.loads[id]; ok {
		state.generation++
	}
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(id, 10))
}

func (c *kindCache[T]) invalidateWhere(match func(id int64, v T) bool) int {
	c.mu.Lock()
	var ids []int64
	for id, v := range c.entries {
		if match(id, v) {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.invalidate(id)
	}
	return len(ids)
}

// edit replaces a cached record with patch(old). Missing entries are left alone
// and the next get reloads from the store.
func (c *kindCache[T]) edit(id int64, patch func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	if !ok {
		return false
	}
	c.entries[id] = patch(v)
	return true
}
