package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hachizeus/ttip-backend/server/model"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Worker app connects from its own origin
	},
}

// HandleWS attaches a worker's device to the live tip feed.
func (s *Service) HandleWS(c *gin.Context) {
	workerID := c.Param("workerId")
	if _, err := s.GetWorker(workerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Worker not found"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("Failed to upgrade WS: %v", err)
		return
	}

	s.RegisterClient(conn, workerID)
	s.logger.Printf("Tip feed connected for worker: %s", workerID)

	// Keep connection alive; we never expect inbound messages
	go func() {
		defer s.UnregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Service) RegisterClient(conn *websocket.Conn, workerID string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.clients[workerID] == nil {
		s.clients[workerID] = make(map[*websocket.Conn]bool)
	}
	s.clients[workerID][conn] = true
	s.connsToWorker[conn] = workerID
}

func (s *Service) UnregisterClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if workerID, ok := s.connsToWorker[conn]; ok {
		if _, exists := s.clients[workerID][conn]; exists {
			delete(s.clients[workerID], conn)
			if len(s.clients[workerID]) == 0 {
				delete(s.clients, workerID)
			}
		}
		delete(s.connsToWorker, conn)
		conn.Close()
	}
}

// NotifyWorker pushes a completed-tip notification to every device the worker
// has connected.
func (s *Service) NotifyWorker(notification model.TipNotification) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	conns, ok := s.clients[notification.WorkerID]
	if !ok {
		return
	}

	for client := range conns {
		if err := client.WriteJSON(notification); err != nil {
			s.logger.Printf("WS write error: %v", err)
			client.Close()
			delete(conns, client)
			delete(s.connsToWorker, client)
		}
	}
}
