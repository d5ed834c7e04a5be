// Package api serves the controller's status surface: health, current
// coordination state, the decision audit trail, a websocket event feed
// and the Prometheus endpoint. Two operator actions (circuit reset, slot
// sync) sit behind JWT auth.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-tick-controller/internal/auth"
	"trading-tick-controller/internal/circuit"
	"trading-tick-controller/internal/database"
	"trading-tick-controller/internal/events"
	"trading-tick-controller/internal/logging"
	"trading-tick-controller/internal/store"
)

// Coordinator is the slice of the controller the API needs.
type Coordinator interface {
	SyncSlots(ctx context.Context) error
}

// SlotReader reads the current slot counter.
type SlotReader interface {
	Active(ctx context.Context) (int64, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins []string
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	positions   *database.PositionRepository
	audit       *database.AuditRepository
	state       *store.Client
	slotReader  SlotReader
	coordinator Coordinator
	eventBus    *events.EventBus
	authService *auth.Service
	hub         *WSHub
	logger      *logging.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg ServerConfig,
	positions *database.PositionRepository,
	audit *database.AuditRepository,
	state *store.Client,
	slotReader SlotReader,
	coordinator Coordinator,
	eventBus *events.EventBus,
	authService *auth.Service,
	logger *logging.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      cfg,
		positions:   positions,
		audit:       audit,
		state:       state,
		slotReader:  slotReader,
		coordinator: coordinator,
		eventBus:    eventBus,
		authService: authService,
		hub:         NewWSHub(),
		logger:      logger.WithComponent("api"),
	}

	s.registerRoutes()
	s.bridgeEvents()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handlePositions)
		api.GET("/decisions", s.handleDecisions)
		api.GET("/decisions/summary", s.handleDecisionSummary)
		api.POST("/auth/login", s.handleLogin)

		protected := api.Group("")
		protected.Use(auth.Middleware(s.authService))
		{
			protected.POST("/circuit/reset", s.handleCircuitReset)
			protected.POST("/slots/sync", s.handleSlotSync)
		}
	}
}

// bridgeEvents forwards every bus event to connected websocket clients.
func (s *Server) bridgeEvents() {
	s.eventBus.SubscribeAll(func(e events.Event) {
		s.hub.BroadcastEvent(e)
	})
}

// Start runs the HTTP server and the websocket hub.
func (s *Server) Start() error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("status API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeOK := s.state.Ping(ctx) == nil
	status := http.StatusOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ok", false: "degraded"}[storeOK],
		"store":  storeOK,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	var circuitState circuit.State
	if err := s.state.GetJSON(ctx, store.CircuitStateKey, &circuitState); err != nil && err != store.ErrNotFound {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "circuit state unavailable"})
		return
	}

	active, err := s.slotReader.Active(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "slot counter unavailable"})
		return
	}

	openRisk, err := s.positions.OpenRiskDollars(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk ledger unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"circuit":           circuitState,
		"slots_active":      active,
		"open_risk_dollars": openRisk,
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.positions.OpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) handleDecisions(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}
	records, err := s.audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records, "count": len(records)})
}

func (s *Server) handleDecisionSummary(c *gin.Context) {
	counts, err := s.audit.CountByOutcome(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": counts})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		OperatorKey string `json:"operator_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator_key required"})
		return
	}

	token, err := s.authService.Login(req.OperatorKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleCircuitReset forcibly clears the breaker, mirroring a manual
// reset after the operator verified the market recovered.
func (s *Server) handleCircuitReset(c *gin.Context) {
	reset := circuit.State{Level: circuit.LevelNone, Reason: "manual reset"}
	if err := s.state.SetJSON(c.Request.Context(), store.CircuitStateKey, reset, 0); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.eventBus.PublishCircuitUpdate(string(circuit.LevelNone), "manual reset", time.Time{})
	s.logger.Warn("circuit breaker manually reset")
	c.JSON(http.StatusOK, gin.H{"circuit": reset})
}

func (s *Server) handleSlotSync(c *gin.Context) {
	if err := s.coordinator.SyncSlots(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	active, _ := s.slotReader.Active(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"slots_active": active})
}
