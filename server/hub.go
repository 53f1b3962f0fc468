package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/pulse/schedule"
)

// Execution event types sent over /ws
const (
	EventExecutionStarted   = "execution_started"
	EventExecutionCompleted = "execution_completed"
)

// ExecutionEvent is pushed to every connected client when an execution
// starts or completes.
type ExecutionEvent struct {
	Type          string                   `json:"type"`
	JobID         string                   `json:"job_id"`
	JobName       string                   `json:"job_name"`
	JobState      schedule.State           `json:"job_state"`
	NextExecution *time.Time               `json:"next_execution,omitempty"`
	ExecutionID   string                   `json:"execution_id"`
	Trigger       schedule.Trigger         `json:"trigger"`
	Status        schedule.ExecutionStatus `json:"status"`
	MessageID     string                   `json:"message_id,omitempty"`
	Error         string                   `json:"error,omitempty"`
	DurationMs    int64                    `json:"duration_ms,omitempty"`
	Timestamp     int64                    `json:"timestamp"`
}

// Hub fans execution events out to websocket clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	ctx        context.Context
	logger     *zap.SugaredLogger
}

// NewHub creates a hub; Run must be started for clients to attach.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		logger:     logger.ComponentLogger("ws"),
	}
}

// Run processes client registration until the hub's context is done.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("Client connected", "client_id", c.id, "clients", n)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("Client disconnected", "client_id", c.id, "clients", n)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends msg to all clients and returns how many accepted it.
// Clients whose buffer is full miss the message.
func (h *Hub) broadcast(msg interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
		}
	}
	return sent
}

// BroadcastExecutionStarted implements schedule.ExecutionBroadcaster.
func (h *Hub) BroadcastExecutionStarted(job *schedule.Job, exec *schedule.Execution) {
	h.broadcast(newExecutionEvent(EventExecutionStarted, job, exec))
}

// BroadcastExecutionCompleted implements schedule.ExecutionBroadcaster.
func (h *Hub) BroadcastExecutionCompleted(job *schedule.Job, exec *schedule.Execution) {
	h.broadcast(newExecutionEvent(EventExecutionCompleted, job, exec))
}

// newExecutionEvent copies what it needs; exec keeps changing after the
// started event is sent.
func newExecutionEvent(kind string, job *schedule.Job, exec *schedule.Execution) ExecutionEvent {
	ev := ExecutionEvent{
		Type:        kind,
		JobID:       job.ID,
		JobName:     job.Name,
		JobState:    job.State,
		ExecutionID: exec.ID,
		Trigger:     exec.Trigger,
		Status:      exec.Status,
		Timestamp:   time.Now().Unix(),
	}
	if job.NextExecution != nil {
		next := *job.NextExecution
		ev.NextExecution = &next
	}
	if exec.MessageID != nil {
		ev.MessageID = *exec.MessageID
	}
	if exec.ErrorMessage != nil {
		ev.Error = *exec.ErrorMessage
	}
	if exec.DurationMs != nil {
		ev.DurationMs = *exec.DurationMs
	}
	return ev
}
