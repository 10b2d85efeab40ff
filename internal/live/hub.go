package live

import (
	"errors"
	"sync"

	"device_tuner/internal/models"
)

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("live: hub closed")

type channel struct {
	// deliver serializes the events of one key, including the replay to a
	// new subscriber. Taken before Hub.mu.
	deliver sync.Mutex

	connected bool
	hasValue  bool
	last      float64
	listeners map[uint64]Listener
}

// Hub is an in-process Source. Whoever owns the quantities (the plant
// simulator in this service) calls Connect, Publish and Disconnect; the hub
// fans the events out to subscribers. A subscriber arriving on a connected
// channel is sent connect and the last value straight away.
type Hub struct {
	mu       sync.Mutex
	channels map[models.PropertyKey]*channel
	nextID   uint64
	closed   bool
}

var _ Source = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{channels: make(map[models.PropertyKey]*channel)}
}

func (h *Hub) channel(key models.PropertyKey) *channel {
	ch, ok := h.channels[key]
	if !ok {
		ch = &channel{listeners: make(map[uint64]Listener)}
		h.channels[key] = ch
	}
	return ch
}

// lock returns the channel of key with its delivery lock held.
// Channels are never removed, so the pointer stays valid.
func (h *Hub) lock(key models.PropertyKey) *channel {
	h.mu.Lock()
	ch := h.channel(key)
	h.mu.Unlock()
	ch.deliver.Lock()
	return ch
}

func (h *Hub) Subscribe(key models.PropertyKey, l Listener) (func(), error) {
	ch := h.lock(key)
	defer ch.deliver.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.nextID++
	id := h.nextID
	ch.listeners[id] = l
	connected, hasValue, last := ch.connected, ch.hasValue, ch.last
	h.mu.Unlock()

	if connected {
		l.OnConnect()
		if hasValue {
			l.OnValue(last)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if ch, ok := h.channels[key]; ok {
				delete(ch.listeners, id)
			}
		})
	}, nil
}

// Connect marks key as reachable. Connecting twice notifies once.
func (h *Hub) Connect(key models.PropertyKey) {
	ch := h.lock(key)
	defer ch.deliver.Unlock()

	h.mu.Lock()
	if ch.connected {
		h.mu.Unlock()
		return
	}
	ch.connected = true
	ls := snapshot(ch)
	h.mu.Unlock()

	for _, l := range ls {
		l.OnConnect()
	}
}

// Publish delivers v to every subscriber of key. Values for a disconnected key are dropped.
func (h *Hub) Publish(key models.PropertyKey, v float64) {
	ch := h.lock(key)
	defer ch.deliver.Unlock()

	h.mu.Lock()
	if !ch.connected {
		h.mu.Unlock()
		return
	}
	ch.hasValue, ch.last = true, v
	ls := snapshot(ch)
	h.mu.Unlock()

	for _, l := range ls {
		l.OnValue(v)
	}
}

// Disconnect marks key unreachable and forgets its last value.
func (h *Hub) Disconnect(key models.PropertyKey) {
	ch := h.lock(key)
	defer ch.deliver.Unlock()

	h.mu.Lock()
	if !ch.connected {
		h.mu.Unlock()
		return
	}
	ch.connected, ch.hasValue = false, false
	ls := snapshot(ch)
	h.mu.Unlock()

	for _, l := range ls {
		l.OnDisconnect()
	}
}

// Connected reports whether key is currently connected.
func (h *Hub) Connected(key models.PropertyKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[key]
	return ok && ch.connected
}

// Close disconnects every channel and refuses further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	keys := make([]models.PropertyKey, 0, len(h.channels))
	for k := range h.channels {
		keys = append(keys, k)
	}
	h.mu.Unlock()

	for _, k := range keys {
		h.Disconnect(k)
	}
}

func snapshot(ch *channel) []Listener {
	out := make([]Listener, 0, len(ch.listeners))
	for _, l := range ch.listeners {
		out = append(out, l)
	}
	return out
}
