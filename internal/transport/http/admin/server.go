package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"huddle/internal/analysis/visual"
	"huddle/internal/engine"
	"huddle/internal/experiment"
	"huddle/internal/ledger"
	"huddle/internal/logger"
	"huddle/internal/pattern"
	"huddle/internal/season"
	"huddle/internal/store/advisorlog"

	"github.com/gin-gonic/gin"
)

// Server 提供只读的运维 HTTP 服务（台账指标、待回填、决策审计、实验与赛季查询）。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 admin HTTP 服务依赖。
type ServerConfig struct {
	Addr        string
	Ledger      *ledger.Ledger
	Patterns    pattern.Store
	Experiments *experiment.Coordinator
	Audits      engine.AuditStore
	Seasons     season.Store
	Exchanges   *advisorlog.Store // 可为 nil，未配置往返日志库时隐藏
	TrendWindow int
}

// NewServer 构建 admin HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("admin http server requires ledger")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{cfg: cfg}
	api := router.Group("/api/admin")
	{
		api.GET("/metrics", h.metrics)
		api.GET("/pending", h.pending)
		api.GET("/recent", h.recent)
		api.GET("/compare", h.compare)
		api.GET("/patterns", h.patterns)
		api.GET("/decisions", h.decisions)
		api.GET("/experiments/:id/analysis", h.experimentAnalysis)
		api.GET("/advisor/exchanges", h.advisorExchanges)
		api.GET("/season", h.seasonRecords)
		api.GET("/season/:period", h.seasonRecord)
		api.GET("/season/trend.png", h.seasonTrendPNG)
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

type handlers struct {
	cfg ServerConfig
}

func (h *handlers) metrics(c *gin.Context) {
	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}
	m, err := h.cfg.Ledger.Metrics(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) pending(c *gin.Context) {
	period, ok := parseIntParam(c, "period", 0)
	if !ok {
		return
	}
	recs, err := h.cfg.Ledger.PendingOutcomes(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "pending": recs})
}

func (h *handlers) recent(c *gin.Context) {
	limit, ok := parseIntParam(c, "limit", 50)
	if !ok {
		return
	}
	recs, err := h.cfg.Ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "records": recs})
}

func (h *handlers) compare(c *gin.Context) {
	period, ok := parseIntParam(c, "period", 0)
	if !ok {
		return
	}
	league := strings.TrimSpace(c.Query("league"))
	cmp, err := h.cfg.Ledger.CompareStrategies(c.Request.Context(), period, league)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *handlers) patterns(c *gin.Context) {
	if h.cfg.Patterns == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pattern store not configured"})
		return
	}
	kind := pattern.KindSuccess
	switch strings.TrimSpace(c.DefaultQuery("kind", "success")) {
	case "success":
	case "anti":
		kind = pattern.KindAnti
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be success or anti"})
		return
	}
	includeRetired := c.Query("include_retired") == "true"
	list, err := h.cfg.Patterns.ListPatterns(c.Request.Context(), kind, includeRetired)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "patterns": list})
}

func (h *handlers) decisions(c *gin.Context) {
	if h.cfg.Audits == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not configured"})
		return
	}
	limit, ok := parseIntParam(c, "limit", 50)
	if !ok {
		return
	}
	list, err := h.cfg.Audits.RecentDecisions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "decisions": list})
}

func (h *handlers) experimentAnalysis(c *gin.Context) {
	if h.cfg.Experiments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "experiment coordinator not configured"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	analysis, err := h.cfg.Experiments.Analyze(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, experiment.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// advisorExchanges 最近的顾问往返现场（提示词/原始输出），排查建议来源用。
func (h *handlers) advisorExchanges(c *gin.Context) {
	if h.cfg.Exchanges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "advisor exchange log not configured"})
		return
	}
	limit, ok := parseIntParam(c, "limit", 20)
	if !ok {
		return
	}
	list, err := h.cfg.Exchanges.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "exchanges": list})
}

func (h *handlers) seasonRecords(c *gin.Context) {
	if h.cfg.Seasons == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "season store not configured"})
		return
	}
	records, err := h.cfg.Seasons.ListRecords(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

func (h *handlers) seasonRecord(c *gin.Context) {
	if h.cfg.Seasons == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "season store not configured"})
		return
	}
	period, err := strconv.Atoi(c.Param("period"))
	if err != nil || period <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
		return
	}
	rec, found, err := h.cfg.Seasons.GetRecord(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "period not recorded"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// seasonTrendPNG 把赛季趋势渲染成 PNG，依赖本机可用的 headless chrome。
func (h *handlers) seasonTrendPNG(c *gin.Context) {
	if h.cfg.Seasons == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "season store not configured"})
		return
	}
	records, err := h.cfg.Seasons.ListRecords(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no season records yet"})
		return
	}
	points := season.Trend(records, h.cfg.TrendWindow)
	img, err := visual.RenderTrend(c.Request.Context(), points)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", img.Bytes)
}

func parseIntParam(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ", expect RFC3339"})
		return time.Time{}, false
	}
	return t, true
}

// requestLogger 记录后台接口调用，便于追踪人工查询。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
