// Package eventfeed fans committed session events out to live websocket
// subscribers. Events arrive over redis pub/sub, so every server instance
// sees the events written by any other instance.
package eventfeed

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"tutorhub/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Subscriber opens the pub/sub subscription carrying all session events.
// It may return nil when no redis is configured.
type Subscriber interface {
	SubscribeToSessionEvents(ctx context.Context) *redis.PubSub
}

// Hub keeps the connected clients per session and delivers events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Client]bool

	RegisterCh   chan Client
	UnregisterCh chan Client
	EventsCh     chan models.Event

	subscriber Subscriber
	done       chan struct{}
}

// NewHub creates a hub. subscriber may be nil, in which case only events
// handed to PublishEvent in this process are delivered.
func NewHub(subscriber Subscriber) *Hub {
	return &Hub{
		clients:      make(map[string]map[Client]bool),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		EventsCh:     make(chan models.Event, 256),
		subscriber:   subscriber,
		done:         make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.startListener(ctx)
	log.Println("INFO: Event feed hub started.")

	for {
		select {
		case client := <-h.RegisterCh:
			h.register(client)

		case client := <-h.UnregisterCh:
			h.unregister(client)

		case event := <-h.EventsCh:
			h.deliver(event)

		case <-ctx.Done():
			h.closeAll()
			log.Println("INFO: Event feed hub stopped.")
			return
		}
	}
}

// Register adds client to its session's subscribers. It reports false
// without blocking once the hub has stopped.
func (h *Hub) Register(client Client) bool {
	select {
	case h.RegisterCh <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client without blocking once the hub has stopped.
func (h *Hub) Unregister(client Client) {
	select {
	case h.UnregisterCh <- client:
	case <-h.done:
	}
}

// PublishEvent delivers an event to the clients connected to this process.
// It is the publisher used when the service runs without redis.
func (h *Hub) PublishEvent(ctx context.Context, event models.Event) error {
	select {
	case h.EventsCh <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of clients watching sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) register(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.GetSessionID()]
	if !ok {
		set = make(map[Client]bool)
		h.clients[client.GetSessionID()] = set
	}
	set[client] = true
	log.Printf("INFO: User %s subscribed to events of session %s", client.GetUserID(), client.GetSessionID())
}

func (h *Hub) unregister(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(client)
}

// remove must be called with mu held.
func (h *Hub) remove(client Client) {
	set, ok := h.clients[client.GetSessionID()]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.GetSessionID())
	}
	client.Close()
}

func (h *Hub) deliver(event models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[event.SessionID] {
		select {
		case client.GetSendChannel() <- event:
		default:
			// Slow consumer: drop it rather than stall the feed.
			log.Printf("WARNING: Dropping slow event subscriber %s on session %s", client.GetUserID(), event.SessionID)
			h.remove(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for client := range set {
			h.remove(client)
		}
	}
}

// startListener forwards events from redis to EventsCh.
func (h *Hub) startListener(ctx context.Context) {
	if h.subscriber == nil {
		return
	}
	pubsub := h.subscriber.SubscribeToSessionEvents(ctx)
	if pubsub == nil {
		log.Println("WARNING: Redis not configured, event feed limited to this instance.")
		return
	}

	go func() {
		defer pubsub.Close()
		if _, err := pubsub.Receive(ctx); err != nil {
			log.Printf("ERROR: Failed to subscribe to session events: %v", err)
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("ERROR: Failed to decode event from %s: %v", msg.Channel, err)
					continue
				}
				select {
				case h.EventsCh <- event:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
