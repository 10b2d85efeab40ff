// Package live caches process values pushed by a live value source.
//
// A source delivers connect, value and disconnect events per quantity on its
// own goroutine. Cache turns them into a three-state machine published as
// one atomic pointer, so readers never block and never see a value paired
// with the wrong state.
package live

import (
	"math"
	"sync/atomic"

	"device_tuner/internal/models"
)

// State of a cache's connection to its source.
type State int32

const (
	Disconnected State = iota
	Awaiting           // connected, no value yet
	HasValue
)

func (s State) String() string {
	switch s {
	case Awaiting:
		return "AWAITING"
	case HasValue:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// Listener receives the events of one monitored quantity.
type Listener interface {
	OnConnect()
	OnValue(v float64)
	OnDisconnect()
}

// Source is a push-based feed of live values. Events for one key reach a
// listener in order, the replay on Subscribe included; cancel detaches it.
type Source interface {
	Subscribe(key models.PropertyKey, l Listener) (cancel func(), err error)
}

// cacheState is never modified once published.
type cacheState struct {
	subscribed bool
	state      State
	value      float64
}

var detached = &cacheState{state: Disconnected, value: math.NaN()}

// Cache holds the most recent value delivered for one quantity.
// NaN means never connected, awaiting the first value, or disconnected.
type Cache struct {
	key     models.PropertyKey
	cur     atomic.Pointer[cacheState]
	updates atomic.Uint64
}

var _ Listener = (*Cache)(nil)

func NewCache(key models.PropertyKey) *Cache {
	c := &Cache{key: key}
	c.cur.Store(detached)
	return c
}

func (c *Cache) Key() models.PropertyKey { return c.key }

// OnConnect attaches the cache once; repeated connects while attached are no-ops.
func (c *Cache) OnConnect() {
	next := &cacheState{subscribed: true, state: Awaiting, value: math.NaN()}
	for {
		old := c.cur.Load()
		if old.subscribed {
			return
		}
		if c.cur.CompareAndSwap(old, next) {
			return
		}
	}
}

// OnValue stores v, last write wins. Deliveries while detached are stale and
// dropped, including one racing a disconnect.
func (c *Cache) OnValue(v float64) {
	next := &cacheState{subscribed: true, state: HasValue, value: v}
	for {
		old := c.cur.Load()
		if !old.subscribed {
			return
		}
		if c.cur.CompareAndSwap(old, next) {
			c.updates.Add(1)
			return
		}
	}
}

// OnDisconnect detaches the cache and discards its value.
func (c *Cache) OnDisconnect() {
	c.cur.Store(detached)
}

// Invalidate is OnDisconnect for callers tearing the cache down.
func (c *Cache) Invalidate() { c.OnDisconnect() }

// Read returns the cached value, NaN when there is none.
func (c *Cache) Read() float64 {
	return c.cur.Load().value
}

func (c *Cache) State() State { return c.cur.Load().state }

// Updates counts accepted value deliveries.
func (c *Cache) Updates() uint64 { return c.updates.Load() }
