package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/logging"
	"github.com/tinytelemetry/logscope/internal/metrics"
	"github.com/tinytelemetry/logscope/internal/model"
	"github.com/tinytelemetry/logscope/internal/sitemap"
	"github.com/tinytelemetry/logscope/internal/uaclass"
)

// maxSitemapBytes caps the sitemap upload size.
const maxSitemapBytes = 50 << 20

// QueryStore is the narrow dataset contract required by the HTTP API.
type QueryStore interface {
	model.LogQuerier
	Report(ctx context.Context, opts duckdb.ReportOptions) (*model.Report, error)
	ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error)
}

// Config holds optional server settings.
type Config struct {
	Classifier model.BotClassifier
	TopN       int
	Bucket     time.Duration
	Logger     *zap.Logger
}

// Server provides a read-only HTTP API over one dataset.
type Server struct {
	addr       string
	store      QueryStore
	classifier model.BotClassifier
	topN       int
	bucket     time.Duration
	logger     *zap.Logger
	server     *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	startTime  time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store QueryStore, conf ...Config) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	var c Config
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.Classifier == nil {
		c.Classifier = uaclass.Default
	}
	if c.TopN <= 0 {
		c.TopN = model.DefaultTopN
	}
	if c.Bucket <= 0 {
		c.Bucket = model.DefaultBucket
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       addr,
		store:      store,
		classifier: c.Classifier,
		topN:       c.TopN,
		bucket:     c.Bucket,
		logger:     logging.OrNop(c.Logger),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe)

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/paths", s.handlePaths)
	r.GET("/api/status", s.handleStatus)
	r.GET("/api/timeline", s.handleTimeline)
	r.GET("/api/404s", s.handle404s)
	r.GET("/api/latency", s.handleLatency)
	r.GET("/api/bots", s.handleBots)
	r.GET("/api/report", s.handleReport)
	r.POST("/api/sitemap/diff", s.handleSitemapDiff)
	r.POST("/api/query", s.handleQuery)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()
	s.logger.Info("http api listening", zap.String("addr", s.addr))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listen address, resolved once Start has run.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	metrics.ObserveHTTPRequest(route, strconv.Itoa(c.Writer.Status()), time.Since(start))
}

func (s *Server) topParam(c *gin.Context) (int, bool) {
	raw := c.Query("top")
	if raw == "" {
		return s.topN, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) bucketParam(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("bucket")
	if raw == "" {
		return s.bucket, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < time.Microsecond {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bucket must be a positive duration such as 1h or 15m"})
		return 0, false
	}
	return d, true
}

func (s *Server) fail(c *gin.Context, what string, err error) {
	s.logger.Error("query failed", zap.String("query", what), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + what})
}

func (s *Server) handleHealth(c *gin.Context) {
	n, err := s.store.TotalRecords(c.Request.Context())
	if err != nil {
		s.fail(c, "read health metrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"records": n,
	})
}

func (s *Server) handlePaths(c *gin.Context) {
	top, ok := s.topParam(c)
	if !ok {
		return
	}
	rows, err := s.store.HitsByPath(c.Request.Context(), top)
	if err != nil {
		s.fail(c, "count hits by path", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": rows})
}

func (s *Server) handleStatus(c *gin.Context) {
	rows, err := s.store.StatusDistribution(c.Request.Context())
	if err != nil {
		s.fail(c, "count statuses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": rows})
}

func (s *Server) handleTimeline(c *gin.Context) {
	bucket, ok := s.bucketParam(c)
	if !ok {
		return
	}
	rows, err := s.store.HitsOverTime(c.Request.Context(), bucket)
	if err != nil {
		s.fail(c, "bucket hits over time", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": bucket.String(), "timeline": rows})
}

func (s *Server) handle404s(c *gin.Context) {
	top, ok := s.topParam(c)
	if !ok {
		return
	}
	rows, err := s.store.Top404s(c.Request.Context(), top)
	if err != nil {
		s.fail(c, "count 404s", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": rows})
}

func (s *Server) handleLatency(c *gin.Context) {
	top, ok := s.topParam(c)
	if !ok {
		return
	}
	rows, err := s.store.P95LatencyByPath(c.Request.Context(), top)
	if errors.Is(err, duckdb.ErrColumnAbsent) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset has no latency column"})
		return
	}
	if err != nil {
		s.fail(c, "compute latency percentiles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"latency": rows})
}

func (s *Server) handleBots(c *gin.Context) {
	top, ok := s.topParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	split, err := s.store.BotHumanSplit(ctx, s.classifier)
	if err != nil {
		s.fail(c, "split bot traffic", err)
		return
	}
	families, err := s.store.TopFamilies(ctx, s.classifier, top)
	if err != nil {
		s.fail(c, "count agent families", err)
		return
	}
	crawled, err := s.store.DistinctCrawledPaths(ctx, s.classifier)
	if err != nil {
		s.fail(c, "list crawled paths", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bot":           split.Bot,
		"human":         split.Human,
		"families":      families,
		"crawled_paths": len(crawled),
	})
}

func (s *Server) handleReport(c *gin.Context) {
	top, ok := s.topParam(c)
	if !ok {
		return
	}
	bucket, ok := s.bucketParam(c)
	if !ok {
		return
	}
	r, err := s.store.Report(c.Request.Context(), duckdb.ReportOptions{
		TopN:       top,
		Bucket:     bucket,
		Classifier: s.classifier,
	})
	if err != nil {
		s.fail(c, "build report", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// handleSitemapDiff compares the sitemap XML in the request body with the
// paths bots actually crawled. Pass urls=true to compare full loc values
// instead of their paths.
func (s *Server) handleSitemapDiff(c *gin.Context) {
	asPaths := c.Query("urls") != "true"
	declared, err := sitemap.LoadSet(http.MaxBytesReader(c.Writer, c.Request.Body, maxSitemapBytes), asPaths)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sitemap XML: " + err.Error()})
		return
	}
	crawled, err := s.store.DistinctCrawledPaths(c.Request.Context(), s.classifier)
	if err != nil {
		s.fail(c, "list crawled paths", err)
		return
	}
	c.JSON(http.StatusOK, sitemap.Compare(declared, crawled))
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(c.Request.Context(), req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
