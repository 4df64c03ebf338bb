// Package websocket доставляет события онбординга во все вкладки одного flow
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType определяет типы сообщений
type MessageType string

const (
	TypeAuthSuccess        MessageType = "auth_success"
	TypeAuthError          MessageType = "auth_error"
	TypeContinueOnboarding MessageType = "continue_onboarding"
)

type Message struct {
	Type      MessageType     `json:"type"`
	FlowID    string          `json:"flowId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Client struct {
	ID     uuid.UUID
	FlowID string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	// hello уходит клиенту сразу после регистрации
	hello []byte
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по flow (одна вкладка-попап и основная вкладка)
	flows map[string]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu   sync.RWMutex
	log  *zap.Logger
	done chan struct{}
}

type BroadcastMessage struct {
	FlowID  string
	Message []byte
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		flows:      make(map[string]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage),
		log:        log,
		done:       make(chan struct{}),
	}
}

// Run обслуживает hub до отмены ctx, затем закрывает все соединения
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case bm := <-h.broadcast:
			h.sendToFlow(bm.FlowID, bm.Message)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.flows = make(map[string]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish отправляет событие всем соединениям flow
func (h *Hub) Publish(flowID string, msgType MessageType, data any) error {
	payload, err := encode(flowID, msgType, data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- &BroadcastMessage{FlowID: flowID, Message: payload}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// FlowSize число подключённых к flow клиентов
func (h *Hub) FlowSize(flowID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.flows[flowID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if _, ok := h.flows[client.FlowID]; !ok {
		h.flows[client.FlowID] = make(map[uuid.UUID]*Client)
	}
	h.flows[client.FlowID][client.ID] = client

	if client.hello != nil {
		client.Send <- client.hello
	}

	h.log.Debug("client registered", zap.Stringer("client", client.ID), zap.String("flow", client.FlowID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	if flow, ok := h.flows[client.FlowID]; ok {
		delete(flow, client.ID)
		if len(flow) == 0 {
			delete(h.flows, client.FlowID)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)

	h.log.Debug("client unregistered", zap.Stringer("client", client.ID), zap.String("flow", client.FlowID))
}

func (h *Hub) sendToFlow(flowID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.flows[flowID] {
		if err := client.deliver(message); err != nil {
			h.log.Warn("message dropped", zap.Stringer("client", client.ID), zap.String("flow", flowID), zap.Error(err))
		}
	}
}

// deliver не блокируется: медленный клиент теряет сообщение
func (c *Client) deliver(message []byte) error {
	select {
	case c.Send <- message:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func encode(flowID string, msgType MessageType, data any) ([]byte, error) {
	msg := Message{
		Type:      msgType,
		FlowID:    flowID,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
