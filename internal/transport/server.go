package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/sigsync/internal/adapter"
	"github.com/roach88/sigsync/internal/eventlog"
	"github.com/roach88/sigsync/internal/ir"
)

const (
	// maxEventBytes bounds one inbound wire event, over HTTP or WebSocket.
	maxEventBytes = 1 << 20

	shutdownTimeout = 5 * time.Second
)

// Settings are the server knobs taken from configuration.
type Settings struct {
	Addr        string
	IdleTimeout time.Duration
	// UpdateRate limits inbound WebSocket updates per connection, in events
	// per second. Zero disables the limit.
	UpdateRate  float64
	UpdateBurst int
}

// Server exposes a Hub over HTTP.
type Server struct {
	hub      *Hub
	settings Settings
	logger   *slog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger         *slog.Logger
	metricsHandler http.Handler
	checkOrigin    func(*http.Request) bool
}

// WithServerLogger sets the request and connection logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(o *serverOptions) { o.metricsHandler = h }
}

// WithCheckOrigin sets the WebSocket origin check. The default accepts every
// origin.
func WithCheckOrigin(fn func(*http.Request) bool) ServerOption {
	return func(o *serverOptions) { o.checkOrigin = fn }
}

// NewServer builds the router for hub.
func NewServer(hub *Hub, settings Settings, opts ...ServerOption) *Server {
	o := serverOptions{
		logger:         slog.Default(),
		metricsHandler: promhttp.Handler(),
		checkOrigin:    func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		hub:      hub,
		settings: settings,
		logger:   o.logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     o.checkOrigin,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		started: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(o.logger))
	r.Use(hub.Metrics().Middleware())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(o.metricsHandler))

	signals := r.Group("/signals")
	signals.GET("", s.handleList)
	signals.POST("", s.handleCreate)
	signals.DELETE("/:id", s.handleDelete)
	signals.GET("/:id/snapshot", s.handleSnapshot)
	signals.POST("/:id/events", s.handleEvent)
	signals.GET("/:id/ws", s.handleWS)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, sweeping idle ephemeral signals and draining
// the journal alongside. On return every signal is closed and the journal is
// flushed.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.settings.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", s.settings.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.hub.RunSweeper(gctx, s.settings.IdleTimeout)
	})
	if j := s.hub.Journal(); j != nil {
		g.Go(func() error {
			if err := j.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()

	s.hub.Close()
	if j := s.hub.Journal(); j != nil {
		j.Close()
		j.Flush(context.WithoutCancel(ctx))
	}
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).String(),
		"signals": s.hub.Directory().Len(),
		"version": ir.ServerVersion,
	})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.hub.Directory().IDs()})
}

type createRequest struct {
	// Value is absent for a list signal. An explicit null starts a value
	// signal holding null.
	Value ir.Value `json:"value"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	id, err := s.hub.CreateEphemeral(req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleDelete(c *gin.Context) {
	if !s.hub.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	wire, err := s.hub.Adapter().Snapshot(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(wire))
}

func (s *Server) handleEvent(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	if err := s.hub.Adapter().Update(c.Param("id"), string(body)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// writeError maps adapter errors to a status and JSON body.
func (s *Server) writeError(c *gin.Context, err error) {
	var perr *ir.ProtocolError
	switch {
	case errors.As(err, &perr):
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Message, "code": perr.Code})
	case errors.Is(err, adapter.ErrSignalNotFound), errors.Is(err, eventlog.ErrClosed):
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
