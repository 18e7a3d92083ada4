package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/splax/hackhub/internal/domain"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// subscriberQueue bounds how many payloads may wait for one slow subscriber
// before the hub drops it.
const subscriberQueue = 32

// Hub fans live events out to subscribers by topic. Each subscriber is fed
// by its own writer goroutine, so the hub loop never waits on a connection.
type Hub struct {
	clients   map[string]map[Subscriber]*peer
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// message couples payload with its topic.
type message struct {
	topic   string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	topic  string
	client Subscriber
}

// peer is a registered subscriber and its outbound queue. Only the hub loop
// closes queue.
type peer struct {
	client Subscriber
	queue  chan []byte
}

// NewHub creates an initialized Hub and starts its loop.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*peer),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		done:      make(chan struct{}),
		log:       logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, peers := range h.clients {
				for _, p := range peers {
					close(p.queue)
					p.client.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			peers, ok := h.clients[sub.topic]
			if !ok {
				peers = make(map[Subscriber]*peer)
				h.clients[sub.topic] = peers
			}
			if _, dup := peers[sub.client]; dup {
				continue
			}
			p := &peer{client: sub.client, queue: make(chan []byte, subscriberQueue)}
			peers[sub.client] = p
			go h.write(sub.topic, p)
		case sub := <-h.unreg:
			h.remove(sub.topic, sub.client)
		case msg := <-h.broadcast:
			for c, p := range h.clients[msg.topic] {
				select {
				case p.queue <- msg.payload:
				default:
					h.log.Warn("dropping slow live subscriber", "topic", msg.topic)
					c.Close()
					h.remove(msg.topic, c)
				}
			}
		}
	}
}

func (h *Hub) remove(topic string, client Subscriber) {
	peers, ok := h.clients[topic]
	if !ok {
		return
	}
	if p, ok := peers[client]; ok {
		close(p.queue)
		delete(peers, client)
	}
	if len(peers) == 0 {
		delete(h.clients, topic)
	}
}

// write drains one subscriber's queue. A failed send closes the subscriber
// and takes it off the topic.
func (h *Hub) write(topic string, p *peer) {
	for payload := range p.queue {
		if err := p.client.Send(payload); err != nil {
			p.client.Close()
			h.Unregister(topic, p.client)
			return
		}
	}
}

// Register adds a client to a topic.
func (h *Hub) Register(topic string, client Subscriber) {
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client from a topic.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to all subscribers of topic.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Publish encodes event and broadcasts it on its topic.
func (h *Hub) Publish(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode live event", "error", err, "topic", event.Topic)
		return
	}
	h.Broadcast(event.Topic, payload)
}

// Close stops the hub loop and closes every subscriber.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
