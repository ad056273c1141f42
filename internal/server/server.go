// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/tokensafe/internal/analysis"
	"github.com/mbd888/tokensafe/internal/circuitbreaker"
	"github.com/mbd888/tokensafe/internal/config"
	"github.com/mbd888/tokensafe/internal/health"
	"github.com/mbd888/tokensafe/internal/logging"
	"github.com/mbd888/tokensafe/internal/metrics"
	"github.com/mbd888/tokensafe/internal/onchain"
	"github.com/mbd888/tokensafe/internal/paywall"
	"github.com/mbd888/tokensafe/internal/ratelimit"
	"github.com/mbd888/tokensafe/internal/realtime"
	"github.com/mbd888/tokensafe/internal/risk"
	"github.com/mbd888/tokensafe/internal/security"
	"github.com/mbd888/tokensafe/internal/validation"
)

// Version is reported by /health and the manifest.
const Version = "0.1.0"

// DefaultDrainDelay is how long Shutdown waits for load balancers to stop
// routing traffic before closing listeners.
const DefaultDrainDelay = 5 * time.Second

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	analysis     *analysis.Service
	health       *health.Registry
	realtimeHub  *realtime.Hub
	gate         *paywall.Gate
	breaker      *circuitbreaker.Breaker
	closers      []closer
	rateLimiter  *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	drainDelay   time.Duration
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

type closer struct {
	name string
	fn   func() error
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealth sets the registry /health reports on.
func WithHealth(r *health.Registry) Option {
	return func(s *Server) {
		s.health = r
	}
}

// WithHub serves the live verdict feed from hub. Run starts it.
func WithHub(hub *realtime.Hub) Option {
	return func(s *Server) {
		s.realtimeHub = hub
	}
}

// WithPaywall gates the analysis routes behind gate.
func WithPaywall(gate *paywall.Gate) Option {
	return func(s *Server) {
		s.gate = gate
	}
}

// WithBreaker exposes the breaker's state on the admin routes.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(s *Server) {
		s.breaker = b
	}
}

// WithCloser registers fn to run during Shutdown, after the listener is
// closed. Closers run in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(s *Server) {
		s.closers = append(s.closers, closer{name: name, fn: fn})
	}
}

// WithDrainDelay overrides DefaultDrainDelay.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, svc *analysis.Service, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if svc == nil {
		return nil, errors.New("server: analysis service is required")
	}

	s := &Server{
		cfg:        cfg,
		analysis:   svc,
		logger:     logging.New(nil, cfg.LogLevel, cfg.LogFormat),
		drainDelay: DefaultDrainDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.NewRegistry()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())

	// The API is public and read-only; any origin may call it.
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rl := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// requireAdmin checks the X-Admin-Secret header against the configured
// secret.
func (s *Server) requireAdmin() gin.HandlerFunc {
	want := []byte(s.cfg.AdminSecret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("X-Admin-Secret"))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.manifestHandler)
	s.router.GET("/.well-known/tokensafe.json", s.manifestHandler)

	if s.realtimeHub != nil {
		s.router.GET("/feed", feedPageHandler)
		s.router.GET("/ws", func(c *gin.Context) {
			s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
		})
	}

	var gate []gin.HandlerFunc
	if s.gate != nil {
		gate = append(gate, s.gate.Middleware())
	}
	v1 := s.router.Group("/v1")
	analysis.NewHandler(s.analysis).RegisterRoutes(v1, gate...)

	// Admin routes exist only when a secret is configured.
	if s.cfg.AdminSecret != "" {
		admin := s.router.Group("/admin", s.requireAdmin())
		admin.GET("/circuits", s.circuitsHandler)
		admin.GET("/realtime", s.realtimeStatsHandler)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No route for " + c.Request.Method + " " + c.Request.URL.Path,
		})
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Operation is one entry of the service manifest.
type Operation struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Paid        bool   `json:"paid"`
}

// Pricing describes the payment gate, when one is configured.
type Pricing struct {
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	ChainID   int64  `json:"chain_id"`
	Contract  string `json:"contract"`
	Recipient string `json:"recipient"`
}

// Manifest is the body of GET / and GET /.well-known/tokensafe.json.
type Manifest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Version     string              `json:"version"`
	Operations  []Operation         `json:"operations"`
	Chains      []onchain.ChainInfo `json:"chains"`
	Pricing     *Pricing            `json:"pricing,omitempty"`
	Feed        string              `json:"feed,omitempty"`
}

func (s *Server) manifest() Manifest {
	paid := s.gate != nil
	m := Manifest{
		Name:        "TokenSafe",
		Description: "ERC-20 token safety analysis combining a honeypot reputation API with on-chain contract probes",
		Version:     Version,
		Operations: []Operation{
			{Method: http.MethodGet, Path: "/v1/chains", Description: "List supported chains"},
			{Method: http.MethodPost, Path: "/v1/analyze", Description: "Analyze one token", Paid: paid},
			{Method: http.MethodPost, Path: "/v1/analyze/batch", Description: "Analyze up to 20 tokens", Paid: paid},
			{Method: http.MethodGet, Path: "/v1/tokens/:address/safety", Description: "Analyze one token by path", Paid: paid},
		},
		Chains: s.analysis.SupportedChains(),
	}
	if paid {
		m.Pricing = &Pricing{
			Price:     s.cfg.PaymentPrice,
			Currency:  "USDC",
			ChainID:   s.cfg.PaymentChainID,
			Contract:  s.cfg.USDCContract,
			Recipient: s.cfg.PaymentRecipient,
		}
	}
	if s.realtimeHub != nil {
		m.Feed = "/ws"
	}
	return m
}

func (s *Server) manifestHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.manifest())
}

func (s *Server) circuitsHandler(c *gin.Context) {
	circuits := []circuitbreaker.KeyState{}
	if s.breaker != nil {
		circuits = s.breaker.Snapshot()
	}
	c.JSON(http.StatusOK, gin.H{"circuits": circuits})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	if s.realtimeHub == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Live feed is not enabled",
		})
		return
	}
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// PublishVerdicts returns an analysis observer that pushes every report to
// the live feed.
func PublishVerdicts(hub *realtime.Hub) func(*analysis.Report) {
	return func(r *analysis.Report) {
		hub.BroadcastVerdict(VerdictEvent(r))
	}
}

// VerdictEvent summarizes a report for the live feed.
func VerdictEvent(r *analysis.Report) *realtime.Verdict {
	v := &realtime.Verdict{
		ReportID:     r.ID,
		TokenAddress: r.TokenAddress,
		ChainID:      r.ChainID,
		SafetyScore:  r.SafetyScore,
		RiskLevel:    string(r.RiskLevel),
		IsHoneypot:   r.IsHoneypot,
		Confidence:   r.Confidence,
		RedFlags:     r.Metadata.RedFlags,
	}
	if !r.Sources.Reputation.OK() {
		v.DegradedSources = append(v.DegradedSources, string(risk.SourceReputation))
	}
	if !r.Sources.Chain.OK() {
		v.DegradedSources = append(v.DegradedSources, string(risk.SourceChain))
	}
	return v
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// A batch is cut off at DefaultBatchTimeout; the rest is headroom to
		// write the response.
		WriteTimeout: analysis.DefaultBatchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"chains", len(s.analysis.SupportedChains()),
			"paywall", s.gate != nil,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.realtimeHub != nil {
		go s.realtimeHub.Run(runCtx)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.drainDelay > 0 {
		time.Sleep(s.drainDelay)
	}

	var shutdownErr error
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	for _, c := range s.closers {
		if err := c.fn(); err != nil {
			s.logger.Error("close error", "component", c.name, "error", err)
			continue
		}
		s.logger.Info("closed", "component", c.name)
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
