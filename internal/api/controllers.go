package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"bracket-core/internal/bracket"
	"bracket-core/internal/events"
	"bracket-core/internal/gateway"
	"bracket-core/internal/plan"
	"bracket-core/internal/task"
	"bracket-core/pkg/broker"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"code": code, "error": msg})
}

// contractFor resolves a symbol through the watchlist so dual-listed tickers
// get their configured currency and primary exchange.
func (s *Server) contractFor(symbol string) broker.Contract {
	sc := s.Watch.Lookup(symbol)
	return broker.StockContract(sc.Symbol, sc.Currency, sc.PrimaryExchange)
}

func (s *Server) getOpenOrders(c *gin.Context) {
	rows, err := s.Session.FetchOpenOrders(s.Cfg.StandardTimeout)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows, "count": len(rows)})
}

func (s *Server) getPositions(c *gin.Context) {
	rows, err := s.Session.FetchPositions(s.Cfg.StandardTimeout)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": rows, "count": len(rows)})
}

func (s *Server) getNetLiquidation(c *gin.Context) {
	value, err := s.Session.NetLiquidation(s.Cfg.StandardTimeout)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"net_liquidation": value})
}

// respondSessionError maps session failures to HTTP statuses: timeouts are
// gateway problems, not client ones.
func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrNotConnected):
		respondError(c, http.StatusServiceUnavailable, "NOT_CONNECTED", "broker session is not connected")
	case errors.Is(err, gateway.ErrTimeout):
		respondError(c, http.StatusGatewayTimeout, "BROKER_TIMEOUT", "broker did not respond in time")
	default:
		respondError(c, http.StatusInternalServerError, "BROKER_ERROR", err.Error())
	}
}

func (s *Server) listQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quotes": s.Quotes.GetAll()})
}

// getQuote serves the cached last price, falling back to a live snapshot on
// a miss so ad hoc symbols outside the watchlist still resolve.
func (s *Server) getQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	if price, age, ok := s.Quotes.GetWithAge(symbol); ok {
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price, "age_ms": age.Milliseconds()})
		return
	}

	price, ok, err := s.Session.SnapshotPrice(s.contractFor(symbol), s.Cfg.QuickTimeout)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, "NO_QUOTE", fmt.Sprintf("no quote available for %s", symbol))
		return
	}
	s.Quotes.Set(symbol, price)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price, "age_ms": 0})
}

func (s *Server) listPlans(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	plans, err := s.Plans.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

func (s *Server) createPlan(c *gin.Context) {
	var p plan.Plan
	if err := c.BindJSON(&p); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid plan payload")
		return
	}
	if p.Symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_PLAN", "plan symbol is required")
		return
	}
	if p.Risk.Qty <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_PLAN", "plan quantity must be positive")
		return
	}
	action := broker.Side(p.Action)
	if p.Action == "" {
		action = broker.SideBuy
	}
	if err := bracket.ValidateBracketPrices(action, p.Levels.EntryLimit, p.Levels.Stop, p.Levels.TakeProfit); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PLAN", err.Error())
		return
	}

	if err := s.Plans.Save(c.Request.Context(), &p, plan.KindDraft); err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": p})
}

func (s *Server) placeBracket(c *gin.Context) {
	var req struct {
		Symbol          string `json:"symbol"`
		BlockOnPosition *bool  `json:"block_on_position,omitempty"`
	}
	if err := c.BindJSON(&req); err != nil || req.Symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "symbol is required")
		return
	}

	if !s.placing.TryLock() {
		respondError(c, http.StatusConflict, "PLACEMENT_IN_PROGRESS", "another bracket placement is in flight")
		return
	}
	defer s.placing.Unlock()

	// Drafts only: the placed copy saved below must never be re-read here
	// and submitted a second time.
	p, err := s.Plans.LatestDraft(c.Request.Context(), req.Symbol)
	if errors.Is(err, plan.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NO_PLAN", fmt.Sprintf("no draft plan found for %s", req.Symbol))
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	// Precedence: request override, then per-symbol watchlist setting, then
	// the global default.
	blockOnPosition := s.Cfg.BlockOnPosition
	if sc := s.Watch.Lookup(req.Symbol); sc.BlockOnPosition != nil {
		blockOnPosition = *sc.BlockOnPosition
	}
	if req.BlockOnPosition != nil {
		blockOnPosition = *req.BlockOnPosition
	}

	tok := task.New(nil)
	placed, err := bracket.PlaceFromPlan(tok, s.Session, s.Plans, s.contractFor(req.Symbol), *p, blockOnPosition)
	if err != nil {
		s.recordJournal(c, req.Symbol, "bracket.place_failed", err.Error())
		respondPlacementError(c, err)
		return
	}

	// Persist first so the duplicate guard sees this placement even if the
	// response is lost.
	placed.ID = "" // placed copy gets its own row
	if err := s.Plans.Save(c.Request.Context(), &placed, plan.KindPlaced); err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	s.recordJournal(c, req.Symbol, "bracket.placed", fmt.Sprintf(
		"parent=%d take=%d stop=%d qty=%d",
		placed.Status.Broker.ParentOrderID,
		placed.Status.Broker.TakeOrderID,
		placed.Status.Broker.StopOrderID,
		placed.Risk.Qty,
	))
	s.Bus.Publish(events.EventBracketPlaced, events.BracketPlaced{
		Symbol:        placed.Symbol,
		ParentOrderID: placed.Status.Broker.ParentOrderID,
		TakeOrderID:   placed.Status.Broker.TakeOrderID,
		StopOrderID:   placed.Status.Broker.StopOrderID,
		Quantity:      placed.Risk.Qty,
	})

	c.JSON(http.StatusOK, gin.H{"plan": placed})
}

func respondPlacementError(c *gin.Context, err error) {
	var dup *bracket.DuplicateBracketError
	var rej *bracket.RejectionError
	switch {
	case errors.As(err, &dup):
		respondError(c, http.StatusConflict, "DUPLICATE_BRACKET", dup.Error())
	case errors.As(err, &rej):
		respondError(c, http.StatusUnprocessableEntity, "ORDER_REJECTED", rej.Error())
	case errors.Is(err, bracket.ErrInvalidBracket), errors.Is(err, bracket.ErrInvalidQuantity):
		respondError(c, http.StatusBadRequest, "INVALID_PLAN", err.Error())
	case errors.Is(err, task.ErrCancelled):
		respondError(c, http.StatusRequestTimeout, "CANCELLED", "placement was cancelled")
	default:
		respondSessionError(c, err)
	}
}

func (s *Server) cancelBrackets(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := c.BindJSON(&req); err != nil || req.Symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "symbol is required")
		return
	}

	tok := task.New(nil)
	report, err := bracket.CancelOpenBrackets(tok, s.Session, req.Symbol, s.Cfg.CancelMaxRetries, s.Cfg.CancelRetryDelay)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	s.recordJournal(c, req.Symbol, "bracket.cancelled", fmt.Sprintf(
		"attempts=%d cancel_requests=%d", report.Attempted, report.CancelRequests))
	s.Bus.Publish(events.EventBracketCancelled, gin.H{
		"symbol": req.Symbol,
		"report": report,
	})
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) janitorCheck(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := c.BindJSON(&req); err != nil || req.Symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "symbol is required")
		return
	}

	tok := task.New(nil)
	report, err := bracket.JanitorCheckAndCancel(tok, s.Session, req.Symbol, s.Cfg.EODCutoff, s.Cfg.EODThresholdMinutes)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	if report.Action == "cancel" {
		s.recordJournal(c, req.Symbol, "janitor.cancelled", report.Reason)
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) getJournal(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	stats, err := s.Journal.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries), "stats": stats})
}

func (s *Server) getReconnectStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected": s.Session.IsConnected(),
		"state":     s.Supervisor.State(),
		"attempts":  s.Supervisor.Attempts(),
	})
}

func (s *Server) listAlerts(c *gin.Context) {
	alerts := s.Alerts.List()
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) createAlert(c *gin.Context) {
	var req struct {
		Symbol    string  `json:"symbol"`
		Direction string  `json:"direction"`
		Price     float64 `json:"price"`
		Note      string  `json:"note,omitempty"`
	}
	if err := c.BindJSON(&req); err != nil || req.Symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "symbol, direction and price are required")
		return
	}
	alert, err := s.Alerts.Add(req.Symbol, req.Direction, req.Price, req.Note)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ALERT", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert": alert})
}

func (s *Server) deleteAlert(c *gin.Context) {
	if err := s.Alerts.Remove(c.Param("id")); err != nil {
		respondError(c, http.StatusNotFound, "ALERT_NOT_FOUND", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// recordJournal logs instead of failing the request when the journal write
// goes wrong; the journal is a trail, not a ledger.
func (s *Server) recordJournal(c *gin.Context, symbol, event, detail string) {
	if s.Journal == nil {
		return
	}
	if _, err := s.Journal.Record(c.Request.Context(), symbol, event, detail); err != nil {
		log.Printf("api: journal write failed: %v", err)
	}
}
