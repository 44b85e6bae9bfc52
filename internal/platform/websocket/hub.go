// Package websocket pushes live updates to connected viewers. Clients
// subscribe to topics and receive every event broadcast to them.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TopicAdmissions carries the admission list, newest first.
const TopicAdmissions = "admissions"

// Event is one message sent to clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connection. Send is closed when the hub drops the client.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks clients and their topic subscriptions. The last event of each
// topic is retained and sent to clients when they subscribe.
type Hub struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	all      map[*Client]struct{}
	retained map[string][]byte
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger.With().Str("component", "websocket").Logger(),
		clients:  make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
		retained: make(map[string][]byte),
	}
}

// Register adds a client and subscribes it to client.Topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.subscribeLocked(client, client.Topics)
}

// Unregister removes a client and closes its Send channel. Unregistering an
// unknown client is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribeLocked(client, topics)
	client.Topics = appendNew(client.Topics, topics)
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(client, topics)
	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.clients[topic][client] = struct{}{}
		if data, ok := h.retained[topic]; ok {
			h.deliver(client, topic, data)
		}
	}
}

// deliver queues data for client. A full buffer loses its oldest event so
// the client always ends on the latest one.
func (h *Hub) deliver(client *Client, topic string, data []byte) {
	select {
	case client.Send <- data:
		return
	default:
	}

	select {
	case <-client.Send:
	default:
	}
	select {
	case client.Send <- data:
		h.logger.Debug().Str("client", client.ID).Str("topic", topic).Msg("client buffer full, oldest event replaced")
	default:
		h.logger.Warn().Str("client", client.ID).Str("topic", topic).Msg("client buffer full, event dropped")
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		subscribers, ok := h.clients[topic]
		if !ok {
			continue
		}
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

func appendNew(have, add []string) []string {
	seen := make(map[string]struct{}, len(have))
	for _, t := range have {
		seen[t] = struct{}{}
	}
	for _, t := range add {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			have = append(have, t)
		}
	}
	return have
}

// ProcessMessage applies a client request. Unknown actions are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends event to the subscribers of event.Topic and retains it.
// Clients whose buffer is full lose their oldest queued event instead.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.retained[event.Topic] = data
	for client := range h.clients[event.Topic] {
		h.deliver(client, event.Topic, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
