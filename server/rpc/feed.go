package rpc

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/events"
)

const (
	clientBuffer = 32
	writeTimeout = 10 * time.Second
)

// Event is a message pushed to feed clients.
type Event struct {
	Topic    string                   `json:"topic"`
	Download internal.ProcessSnapshot `json:"download"`
}

// Feed fans download events out to websocket clients. Slow clients
// miss events instead of blocking publishers.
type Feed struct {
	bus        evbus.Bus
	onProgress func(internal.ProcessSnapshot)
	onComplete func(internal.ProcessSnapshot)

	mu      sync.Mutex
	clients map[chan Event]struct{}
}

func NewFeed(bus evbus.Bus) (*Feed, error) {
	f := &Feed{
		bus:     bus,
		clients: make(map[chan Event]struct{}),
	}
	f.onProgress = func(s internal.ProcessSnapshot) { f.broadcast(events.TopicProgress, s) }
	f.onComplete = func(s internal.ProcessSnapshot) { f.broadcast(events.TopicCompleted, s) }

	if err := bus.Subscribe(events.TopicProgress, f.onProgress); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(events.TopicCompleted, f.onComplete); err != nil {
		bus.Unsubscribe(events.TopicProgress, f.onProgress)
		return nil, err
	}
	return f, nil
}

func (f *Feed) broadcast(topic string, s internal.ProcessSnapshot) {
	ev := Event{Topic: topic, Download: s}

	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *Feed) subscribe() chan Event {
	ch := make(chan Event, clientBuffer)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan Event) {
	f.mu.Lock()
	if _, ok := f.clients[ch]; ok {
		delete(f.clients, ch)
		close(ch)
	}
	f.mu.Unlock()
}

// Close detaches the feed from the bus and disconnects every client.
func (f *Feed) Close() {
	f.bus.Unsubscribe(events.TopicProgress, f.onProgress)
	f.bus.Unsubscribe(events.TopicCompleted, f.onComplete)

	f.mu.Lock()
	for ch := range f.clients {
		delete(f.clients, ch)
		close(ch)
	}
	f.mu.Unlock()
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	ch := f.subscribe()
	defer f.unsubscribe(ch)

	// a read error means the client went away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-ch:
			if !ok {
				c.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeTimeout),
				)
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WriteJSON(ev); err != nil {
				slog.Debug("feed client write failed", slog.Any("err", err))
				return
			}
		}
	}
}
