package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"device_tuner/internal/logger"
	"device_tuner/internal/models"

	"github.com/gorilla/websocket"
)

const (
	defaultReconnectDelay = 2 * time.Second
	wsHandshakeTimeout    = 5 * time.Second
	wsReadLimit           = 1 << 20
)

// ErrNoFeedURL is returned by Subscribe on a source without a feed to dial.
var ErrNoFeedURL = errors.New("live: websocket feed url not configured")

// feedEnvelope is the frame the tuner's own /ws stream emits.
type feedEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type feedValue struct {
	Key  models.PropertyKey `json:"key"`
	Live *float64           `json:"live_value"`
}

// WSSource is a Source reading a remote websocket feed. The whole feed is one
// connection: when it comes up every listener is connected, when it drops
// every listener is disconnected. Run redials until its context ends.
type WSSource struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	log            *logger.Logger

	mu        sync.Mutex
	listeners map[models.PropertyKey]map[uint64]Listener
	nextID    uint64
	connected bool
}

var _ Source = (*WSSource)(nil)

func NewWSSource(url string, reconnectDelay time.Duration, log *logger.Logger) *WSSource {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &WSSource{
		url:            url,
		reconnectDelay: reconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout},
		log:            logger.OrNop(log),
		listeners:      make(map[models.PropertyKey]map[uint64]Listener),
	}
}

func (s *WSSource) Subscribe(key models.PropertyKey, l Listener) (func(), error) {
	if s.url == "" {
		return nil, ErrNoFeedURL
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.listeners[key] == nil {
		s.listeners[key] = make(map[uint64]Listener)
	}
	s.listeners[key][id] = l
	connected := s.connected
	s.mu.Unlock()

	if connected {
		l.OnConnect()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[key], id)
			if len(s.listeners[key]) == 0 {
				delete(s.listeners, key)
			}
		})
	}, nil
}

// Run keeps a session open until ctx is canceled.
func (s *WSSource) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warnw("live_feed_dropped", "url", s.url, "err", err, "retry_in", s.reconnectDelay)

		t := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *WSSource) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(wsReadLimit)

	// unblock ReadJSON on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.setConnected(true)
	defer s.setConnected(false)
	s.log.Infow("live_feed_connected", "url", s.url)

	for {
		var env feedEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		s.dispatch(env)
	}
}

func (s *WSSource) dispatch(env feedEnvelope) {
	switch env.Type {
	case "properties":
		var values []feedValue
		if err := json.Unmarshal(env.Data, &values); err != nil {
			s.log.Warnw("live_feed_bad_frame", "err", err)
			return
		}
		for _, v := range values {
			if v.Live == nil {
				continue
			}
			for _, l := range s.listenersOf(v.Key) {
				l.OnValue(*v.Live)
			}
		}
	case "error":
		s.log.Warnw("live_feed_remote_error", "err", env.Error)
	}
}

func (s *WSSource) listenersOf(key models.PropertyKey) []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Listener, 0, len(s.listeners[key]))
	for _, l := range s.listeners[key] {
		out = append(out, l)
	}
	return out
}

func (s *WSSource) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	var all []Listener
	for _, ls := range s.listeners {
		for _, l := range ls {
			all = append(all, l)
		}
	}
	s.mu.Unlock()

	for _, l := range all {
		if connected {
			l.OnConnect()
		} else {
			l.OnDisconnect()
		}
	}
}
