package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"copyflow/internal/domain"
	"copyflow/internal/logger"
	"copyflow/internal/store"
	"copyflow/internal/store/model"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// Router exposes the execution ledger and the trade/subscriber boundary.
type Router struct {
	store store.Store
}

func NewRouter(st store.Store) *Router {
	return &Router{store: st}
}

// Register mounts the routes under the given group (normally /v1).
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	copyGroup := group.Group("/copy")
	copyGroup.POST("/executions", r.handlePostExecution)
	copyGroup.GET("/executions", r.handleListExecutions)
	copyGroup.POST("/subscribe", r.handleSubscribe)
	copyGroup.GET("/subscribers", r.handleListSubscribers)
	copyGroup.PATCH("/subscribers/:id", r.handlePatchSubscriber)

	group.POST("/ingest/trades", r.handleIngestTrade)
	group.GET("/strategies/:id/trades", r.handleStrategyTrades)
}

func (r *Router) handlePostExecution(c *gin.Context) {
	var req domain.Execution
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Errorf("[api] execution bind failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warnf("[api] execution rejected ip=%s key=%s err=%v", c.ClientIP(), req.IdempotencyKey(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := r.store.Executions().Upsert(c.Request.Context(), &model.ExecutionModel{
		StrategyID:    req.StrategyID,
		SubscriberID:  req.SubscriberID,
		SignalTradeID: req.SignalTradeID,
		Side:          string(req.Side),
		Qty:           req.RequestedQty,
		Price:         req.Price,
		NotionalUSD:   req.NotionalUSD,
		CopiedQty:     req.CopiedQty,
		Status:        string(req.Status),
		Error:         req.Error,
		LatencyMS:     req.LatencyMS,
	})
	if err != nil {
		logger.Errorf("[api] execution upsert failed ip=%s key=%s err=%v", c.ClientIP(), req.IdempotencyKey(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("[api] execution upsert ip=%s key=%s status=%s", c.ClientIP(), req.IdempotencyKey(), row.Status)
	c.JSON(http.StatusOK, gin.H{"execution": toExecution(*row)})
}

func (r *Router) handleListExecutions(c *gin.Context) {
	q := store.ExecutionQuery{
		StrategyID: strings.TrimSpace(c.Query("strategyId")),
		Ascending:  strings.EqualFold(c.DefaultQuery("order", "desc"), "asc"),
	}

	var err error
	if q.StartMS, err = parseTimeParam(c.Query("start")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.EndMS, err = parseTimeParam(c.Query("end")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	q.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if q.Offset < 0 {
		q.Offset = 0
	}
	if token := c.Query("cursor"); token != "" {
		if q.Cursor, err = decodeCursor(token); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	page, err := r.store.Executions().List(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("[api] executions list failed ip=%s strategy=%s err=%v", c.ClientIP(), q.StrategyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]domain.Execution, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, toExecution(m))
	}
	resp := gin.H{
		"items":   items,
		"hasNext": page.HasNext,
	}
	if page.Total != nil {
		resp["total"] = *page.Total
		resp["offset"] = q.Offset
	}
	if page.Next != nil {
		resp["nextCursor"] = encodeCursor(*page.Next)
	}
	if page.Prev != nil {
		resp["prevCursor"] = encodeCursor(*page.Prev)
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub := domain.Subscriber{
		StrategyID:     strings.TrimSpace(req.StrategyID),
		RiskMultiplier: req.RiskMultiplier,
		MaxLeverage:    req.MaxLeverage,
		MaxNotionalUSD: req.MaxNotionalUSD,
		Enabled:        req.Enabled == nil || *req.Enabled,
		Notes:          req.Notes,
	}
	if err := sub.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	enabled := 0
	if sub.Enabled {
		enabled = 1
	}
	row := &model.SubscriberModel{
		StrategyID:     sub.StrategyID,
		RiskMultiplier: sub.RiskMultiplier,
		MaxLeverage:    sub.MaxLeverage,
		MaxNotionalUSD: sub.MaxNotionalUSD,
		Enabled:        enabled,
		Notes:          sub.Notes,
	}
	if err := r.store.Subscribers().Create(c.Request.Context(), row); err != nil {
		logger.Errorf("[api] subscribe failed ip=%s strategy=%s err=%v", c.ClientIP(), sub.StrategyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] subscribe ip=%s strategy=%s subscriber=%d mult=%.4f", c.ClientIP(), sub.StrategyID, row.ID, sub.RiskMultiplier)
	c.JSON(http.StatusOK, gin.H{"subscriber": toSubscriber(*row)})
}

func (r *Router) handleListSubscribers(c *gin.Context) {
	strategyID := strings.TrimSpace(c.Query("strategyId"))
	enabledOnly := strings.EqualFold(c.DefaultQuery("enabledOnly", "false"), "true")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))

	rows, err := r.store.Subscribers().List(c.Request.Context(), strategyID, enabledOnly, limit)
	if err != nil {
		logger.Errorf("[api] subscribers list failed ip=%s strategy=%s err=%v", c.ClientIP(), strategyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]domain.Subscriber, 0, len(rows))
	for _, m := range rows {
		items = append(items, toSubscriber(m))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (r *Router) handlePatchSubscriber(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscriber id"})
		return
	}
	var req subscriberPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RiskMultiplier != nil && *req.RiskMultiplier < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "risk multiplier must be >= 0"})
		return
	}
	if req.MaxNotionalUSD != nil && *req.MaxNotionalUSD < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max notional must be >= 0"})
		return
	}
	row, err := r.store.Subscribers().Update(c.Request.Context(), id, store.SubscriberPatch{
		RiskMultiplier: req.RiskMultiplier,
		MaxLeverage:    req.MaxLeverage,
		MaxNotionalUSD: req.MaxNotionalUSD,
		Enabled:        req.Enabled,
		Notes:          req.Notes,
	})
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscriber not found"})
		return
	}
	if err != nil {
		logger.Errorf("[api] subscriber patch failed ip=%s id=%d err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] subscriber patch ip=%s id=%d", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"subscriber": toSubscriber(*row)})
}

func (r *Router) handleIngestTrade(c *gin.Context) {
	var req tradeIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad side " + strconv.Quote(req.Side)})
		return
	}
	switch {
	case strings.TrimSpace(req.StrategyID) == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing strategy id"})
		return
	case strings.TrimSpace(req.OrderID) == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing order id"})
		return
	case strings.TrimSpace(req.IdempotencyKey) == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing idempotency key"})
		return
	case req.Qty <= 0 || req.Price <= 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "qty and price must be > 0"})
		return
	}

	row := &model.TradeModel{
		StrategyID:     strings.TrimSpace(req.StrategyID),
		OrderID:        strings.TrimSpace(req.OrderID),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		TS:             req.TS,
		Symbol:         strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:           string(side),
		Qty:            req.Qty,
		Price:          req.Price,
	}
	if len(req.Meta) > 0 {
		raw, err := json.Marshal(req.Meta)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		row.Meta = datatypes.JSON(raw)
	}
	inserted, err := r.store.Trades().Insert(c.Request.Context(), row)
	if err != nil {
		logger.Errorf("[api] trade ingest failed ip=%s strategy=%s order=%s err=%v", c.ClientIP(), row.StrategyID, row.OrderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("[api] trade ingest ip=%s strategy=%s order=%s inserted=%v", c.ClientIP(), row.StrategyID, row.OrderID, inserted)
	c.JSON(http.StatusOK, gin.H{"inserted": inserted, "id": row.ID})
}

func (r *Router) handleStrategyTrades(c *gin.Context) {
	strategyID := strings.TrimSpace(c.Param("id"))
	if strategyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing strategy id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := r.store.Trades().ListRecent(c.Request.Context(), strategyID, limit)
	if err != nil {
		logger.Errorf("[api] strategy trades failed ip=%s strategy=%s err=%v", c.ClientIP(), strategyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]domain.SourceTrade, 0, len(rows))
	for _, m := range rows {
		items = append(items, toSourceTrade(m))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
