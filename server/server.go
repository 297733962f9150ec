package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hachizeus/ttip-backend/gateway"
	"github.com/hachizeus/ttip-backend/server/model"
)

type Config struct {
	JWTSecret   string
	AdminSecret string
	CertFile    string
	KeyFile     string
	CORSEnabled bool

	// StatusWaitThreshold is how long the poll endpoint waits for the callback
	// before querying the gateway directly. Defaults to 30s.
	StatusWaitThreshold time.Duration
	// OrphanAge is how old a pending transaction must be to show up in the
	// admin orphan view. Defaults to 10m.
	OrphanAge time.Duration
}

func (s *Service) Start(port string) {
	r := gin.Default()

	// CORS configuration
	config := cors.DefaultConfig()
	if s.config.CORSEnabled {
		s.logger.Println("CORS: Enabling Access-Control-Allow-Origin: *")
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = []string{"http://localhost:3000", "https://localhost:3000"}
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	s.routes(r)

	s.logger.Printf("Server starting on :%s", port)
	if s.config.CertFile != "" && s.config.KeyFile != "" {
		s.logger.Printf("Enabling HTTPS with cert: %s", s.config.CertFile)
		if err := r.RunTLS(":"+port, s.config.CertFile, s.config.KeyFile); err != nil {
			s.logger.Fatalf("Failed to start HTTPS server: %v", err)
		}
	} else {
		r.Run(":" + port)
	}
}

func (s *Service) routes(r *gin.Engine) {
	// WebSocket endpoint for the worker's live tip feed
	r.GET("/ws/:workerId", s.HandleWS)

	// API endpoints
	r.POST("/api/workers", s.HandleRegisterWorker)
	r.GET("/api/workers/:workerId", s.HandleGetWorker)
	r.POST("/api/tips", s.HandleTip)
	r.GET("/api/tips/:correlationId/status", s.HandleTipStatus)

	// Gateway callback
	r.POST("/callbacks/gateway", s.HandleGatewayCallback)

	// Admin endpoints
	r.POST("/admin/login", s.HandleAdminLogin)
	r.GET("/admin/transactions/orphans", s.HandleListOrphans)
	r.POST("/admin/transactions/:id/retry", s.HandleRetryTransaction)
}

func (s *Service) HandleRegisterWorker(c *gin.Context) {
	var req model.RegisterWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	worker, err := s.RegisterWorker(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrWorkerExists):
			c.JSON(http.StatusConflict, gin.H{"error": "Worker id already taken"})
		case errors.Is(err, ErrInvalidContact):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		default:
			s.logger.Printf("Failed to register worker: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register worker"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Worker registered", "worker": worker})
}

func (s *Service) HandleGetWorker(c *gin.Context) {
	worker, err := s.GetWorker(c.Param("workerId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Worker not found"})
		return
	}

	// Return only public info
	c.JSON(http.StatusOK, model.WorkerResponse{
		WorkerID:   worker.WorkerID,
		Name:       worker.Name,
		Occupation: worker.Occupation,
		TipCount:   worker.TipCount,
	})
}

func (s *Service) HandleTip(c *gin.Context) {
	var req model.TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Printf("Tip error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := s.InitiateTip(c.Request.Context(), req)
	if err != nil {
		var rejection *gateway.RejectionError
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidContact):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrWorkerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Worker not found"})
		case errors.As(err, &rejection):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejection.Reason})
		case errors.Is(err, ErrGatewayUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment service unavailable, try again later"})
		default:
			s.logger.Printf("Tip initiation failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate tip"})
		}
		return
	}

	c.JSON(http.StatusAccepted, model.TipResponse{
		CorrelationID: txn.CorrelationID,
		Status:        model.StatusPending,
		Message:       "Payment request sent. Ask the customer to enter their PIN.",
	})
}

func (s *Service) HandleTipStatus(c *gin.Context) {
	status, err := s.TipStatus(c.Request.Context(), c.Param("correlationId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown correlation id"})
			return
		}
		s.logger.Printf("Status lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// HandleGatewayCallback always acknowledges with a zero result code so the
// gateway stops redelivering; reconciliation outcomes are internal.
func (s *Service) HandleGatewayCallback(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	var env gateway.CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Body.CorrelationID != "" {
		s.Reconcile(env.Body, raw)
	} else {
		s.logger.Printf("Unparseable gateway callback: %s", string(raw))
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (s *Service) HandleAdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.config.AdminSecret == "" || req.Secret != s.config.AdminSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin secret"})
		return
	}

	token, err := s.GenerateAdminToken("admin")
	if err != nil {
		s.logger.Printf("Failed to generate admin token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Service) HandleListOrphans(c *gin.Context) {
	if !s.authorizeAdmin(c) {
		return
	}

	orphans, err := s.Orphans()
	if err != nil {
		s.logger.Printf("Failed to list orphans: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orphans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orphans": orphans, "count": len(orphans)})
}

func (s *Service) HandleRetryTransaction(c *gin.Context) {
	if !s.authorizeAdmin(c) {
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction id"})
		return
	}

	txn, err := s.RetryTransaction(c.Request.Context(), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		case errors.Is(err, ErrNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "Transaction already finalized"})
		default:
			s.logger.Printf("Retry failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Retry failed"})
		}
		return
	}

	c.JSON(http.StatusAccepted, model.TipResponse{
		CorrelationID: txn.CorrelationID,
		Status:        model.StatusPending,
		Message:       "Fresh payment request issued",
	})
}
