package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/riskclient"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/models"
)

// GET /
func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "mevshield",
		"status":  "operational",
		"endpoints": gin.H{
			"protect":   "/api/protect",
			"stats":     "/api/stats",
			"history":   "/api/history",
			"websocket": "/ws",
			"metrics":   "/metrics",
		},
	})
}

// GET /health
func (s *Server) health(c *gin.Context) {
	scoringHealthy := s.scorer != nil && s.scorer.Healthy(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":                "healthy",
		"scoring_api":           scoringHealthy,
		"websocket_connections": s.hub.Connections(),
		"block_number":          s.shield.BlockNumber(),
		"timestamp":             time.Now().UTC(),
	})
}

// POST /api/protect
func (s *Server) protect(c *gin.Context) {
	var req models.ProtectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid protect request: %v", err))
		return
	}

	user, ok := parseAddress(req.From)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.From))
		return
	}
	assetIn, ok := parseAddress(req.AssetIn)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.AssetIn))
		return
	}
	assetOut, ok := parseAddress(req.AssetOut)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.AssetOut))
		return
	}
	amountIn, err := decimal.NewFromString(req.AmountIn)
	if err != nil {
		s.writeError(c, errors.InvalidArgument("invalid amount_in %q", req.AmountIn))
		return
	}
	minAmountOut, err := decimal.NewFromString(req.MinAmountOut)
	if err != nil {
		s.writeError(c, errors.InvalidArgument("invalid min_amount_out %q", req.MinAmountOut))
		return
	}

	var (
		score          uint8
		recommendation string
	)
	if req.RiskScore != nil {
		score = *req.RiskScore
	} else {
		if s.scorer == nil {
			s.writeError(c, errors.InvalidArgument("no risk score supplied and no scoring API configured"))
			return
		}
		value, _ := amountIn.Float64()
		prediction, err := s.scorer.Score(c.Request.Context(), riskclient.DefaultFeatures(value))
		if err != nil {
			s.logger.Error("risk scoring failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk scoring unavailable: " + err.Error()})
			return
		}
		score = prediction.Score()
		recommendation = prediction.Recommendation
	}

	outcome, err := s.shield.ProtectTrade(user, assetIn, assetOut, amountIn, minAmountOut, score)
	if err != nil {
		s.writeError(c, err)
		return
	}

	record := &models.TradeRecord{
		User:       user.Hex(),
		AssetIn:    assetIn.Hex(),
		AssetOut:   assetOut.Hex(),
		AmountIn:   amountIn,
		AmountOut:  outcome.AmountOut,
		OrderID:    outcome.OrderID,
		RiskScore:  outcome.RiskScore,
		Method:     outcome.Method,
		SavingsUSD: outcome.SavingsUSD,
	}
	if err := s.store.Save(c.Request.Context(), record); err != nil {
		// The trade already committed; history is best effort.
		s.logger.Error("failed to persist trade record", zap.Error(err))
	}

	c.JSON(http.StatusOK, models.ProtectResponse{
		RiskScore:    outcome.RiskScore,
		Method:       outcome.Method,
		AmountOut:    outcome.AmountOut,
		OrderID:      outcome.OrderID,
		SavingsUSD:   outcome.SavingsUSD,
		RecordID:     record.ID,
		ExecutedAt:   record.CreatedAt,
		Recommending: recommendation,
	})
}

// GET /api/stats
func (s *Server) stats(c *gin.Context) {
	stats := s.shield.Stats()
	stats.FeedConnections = s.hub.Connections()
	stats.ScoringAPIHealthy = s.scorer != nil && s.scorer.Healthy(c.Request.Context())
	if total, err := s.store.TotalSavings(c.Request.Context()); err == nil {
		stats.TotalSavingsUSD = decimal.NewFromFloat(total).Round(2)
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/history
func (s *Server) listHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	user := c.Query("user")
	records, total, err := s.store.List(c.Request.Context(), user, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records, "total": total})
}

// POST /api/orders/:id/execute
func (s *Server) executeOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, errors.InvalidArgument("invalid order id %q", c.Param("id")))
		return
	}
	var req struct {
		RiskScore uint8 `json:"risk_score" binding:"lte=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid execute request: %v", err))
		return
	}
	amountOut, err := s.shield.ExecuteDelayedOrder(orderID, req.RiskScore)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "amount_out": amountOut})
}

// POST /api/orders/:id/cancel
func (s *Server) cancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, errors.InvalidArgument("invalid order id %q", c.Param("id")))
		return
	}
	var req struct {
		User string `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid cancel request: %v", err))
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.User))
		return
	}
	if err := s.shield.CancelOrder(user, orderID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": "cancelled"})
}

// POST /api/bundles
func (s *Server) submitBundle(c *gin.Context) {
	var req struct {
		Hash        string `json:"hash" binding:"required"`
		Originator  string `json:"originator" binding:"required"`
		TargetBlock uint64 `json:"target_block" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid bundle request: %v", err))
		return
	}
	originator, ok := parseAddress(req.Originator)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.Originator))
		return
	}
	hash := common.HexToHash(req.Hash)
	if err := s.shield.SubmitBundle(originator, hash, req.TargetBlock); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex(), "status": "submitted"})
}

// POST /api/bundles/:hash/included
func (s *Server) markBundleIncluded(c *gin.Context) {
	var req struct {
		Reporter string `json:"reporter" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid report: %v", err))
		return
	}
	reporter, ok := parseAddress(req.Reporter)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.Reporter))
		return
	}
	hash := common.HexToHash(c.Param("hash"))
	if err := s.shield.ReportBundleIncluded(reporter, hash); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex(), "status": "included"})
}

// POST /api/bundles/:hash/failed
func (s *Server) markBundleFailed(c *gin.Context) {
	var req struct {
		Reporter string `json:"reporter" binding:"required"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid report: %v", err))
		return
	}
	reporter, ok := parseAddress(req.Reporter)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.Reporter))
		return
	}
	hash := common.HexToHash(c.Param("hash"))
	if err := s.shield.ReportBundleFailed(reporter, hash, req.Reason); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex(), "status": "failure recorded"})
}

// POST /api/scores
func (s *Server) submitScore(c *gin.Context) {
	var req struct {
		Operator string `json:"operator" binding:"required"`
		TradeID  string `json:"trade_id" binding:"required"`
		Score    uint8  `json:"score" binding:"lte=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid score submission: %v", err))
		return
	}
	operator, ok := parseAddress(req.Operator)
	if !ok {
		s.writeError(c, errors.InvalidArgument("%q is not a valid address", req.Operator))
		return
	}
	tradeID := common.HexToHash(req.TradeID)
	if err := s.shield.SubmitScore(operator, tradeID, req.Score); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade_id": tradeID.Hex(), "status": "recorded"})
}

// PUT /api/admin/threshold
func (s *Server) setThreshold(c *gin.Context) {
	var req struct {
		Threshold uint8 `json:"threshold" binding:"lte=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid threshold update: %v", err))
		return
	}
	if err := s.shield.SetThreshold(req.Threshold); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": req.Threshold})
}

// PUT /api/admin/fee
func (s *Server) setFee(c *gin.Context) {
	var req struct {
		FeeBps int64 `json:"fee_bps" binding:"lte=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid fee update: %v", err))
		return
	}
	if err := s.shield.SetFeeBps(req.FeeBps); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_bps": req.FeeBps})
}

// PUT /api/admin/delay
func (s *Server) setDelay(c *gin.Context) {
	var req struct {
		Seconds int64 `json:"seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.InvalidArgument("invalid delay update: %v", err))
		return
	}
	if err := s.shield.SetDefaultDelay(req.Seconds); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seconds": req.Seconds})
}

// POST /api/admin/pause
func (s *Server) togglePause(c *gin.Context) {
	if err := s.shield.TogglePause(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": s.shield.Vault.Paused()})
}

func parseAddress(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
