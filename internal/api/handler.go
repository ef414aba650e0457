package api

import (
	"net/http"
	"sync"
	"time"

	"bracket-core/internal/events"
	"bracket-core/internal/gateway"
	"bracket-core/internal/journal"
	"bracket-core/internal/monitor"
	"bracket-core/internal/plan"
	"bracket-core/internal/reconnect"
	"bracket-core/pkg/cache"
	"bracket-core/pkg/config"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the gateway session and the event bus.
type Server struct {
	Router     *gin.Engine
	Bus        *events.Bus
	Session    *gateway.Session
	Plans      *plan.Store
	Journal    *journal.Journal
	Alerts     *monitor.AlertBook
	Supervisor *reconnect.Supervisor
	Quotes     *cache.QuoteCache
	Cfg        *config.Config
	Watch      *config.Watchlist
	JWTSecret  string
	APIKey     string

	// placing serializes bracket placement; a second request while one is in
	// flight gets 409 instead of queueing behind the broker round trips.
	placing sync.Mutex
}

func NewServer(bus *events.Bus, session *gateway.Session, plans *plan.Store, jrnl *journal.Journal, alerts *monitor.AlertBook, supervisor *reconnect.Supervisor, quotes *cache.QuoteCache, watch *config.Watchlist, cfg *config.Config) *Server {
	r := gin.New()

	// Tagging runs before logging so every access line carries an ID, and
	// the limiter sits ahead of the timeout so rejected requests are cheap.
	r.Use(gin.Recovery())
	r.Use(requestTagger())
	r.Use(accessLog())
	r.Use(rateLimit(limiters))
	r.Use(withTimeout(30 * time.Second))
	r.Use(cors())

	s := &Server{
		Router:     r,
		Bus:        bus,
		Session:    session,
		Plans:      plans,
		Journal:    jrnl,
		Alerts:     alerts,
		Supervisor: supervisor,
		Quotes:     quotes,
		Cfg:        cfg,
		Watch:      watch,
		JWTSecret:  cfg.JWTSecret,
		APIKey:     cfg.APIKey,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		api.POST("/auth/token", s.issueToken)

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/orders/open", s.getOpenOrders)
			protected.GET("/positions", s.getPositions)
			protected.GET("/account/netliq", s.getNetLiquidation)
			protected.GET("/quotes", s.listQuotes)
			protected.GET("/quotes/:symbol", s.getQuote)

			protected.GET("/plans", s.listPlans)
			protected.POST("/plans", s.createPlan)

			protected.POST("/brackets/place", s.placeBracket)
			protected.POST("/brackets/cancel", s.cancelBrackets)
			protected.POST("/janitor/check", s.janitorCheck)

			protected.GET("/journal", s.getJournal)
			protected.GET("/reconnect/status", s.getReconnectStatus)

			protected.GET("/alerts", s.listAlerts)
			protected.POST("/alerts", s.createAlert)
			protected.DELETE("/alerts/:id", s.deleteAlert)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": s.Session.IsConnected(),
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
