// Package devtools serves a read-only view of the console store: the
// current snapshot over HTTP, a live stream of reduced actions over a
// websocket and the process metrics.
package devtools

import (
	"context"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/store"
)

// Source is the store being inspected
type Source[S any] interface {
	GetState() S
	Subscribe(fn store.Listener[S]) func()
}

// Options configures an Inspector
type Options struct {
	// AllowedOrigins restricts websocket origins; empty allows any
	AllowedOrigins []string
	// Gatherer defaults to prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
	Logger   *zerolog.Logger
}

// Inspector streams a store to websocket clients
type Inspector[S any] struct {
	src      Source[S]
	hub      *Hub
	upgrader websocket.Upgrader
	gatherer prometheus.Gatherer
	seq      atomic.Uint64
	logger   zerolog.Logger
}

// New creates an Inspector for src. Call Start to begin streaming.
func New[S any](src Source[S], opts Options) *Inspector[S] {
	lg := logger.For("inspector")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	origins := slices.Clone(opts.AllowedOrigins)
	return &Inspector[S]{
		src: src,
		hub: NewHub(lg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
			},
		},
		gatherer: gatherer,
		logger:   lg,
	}
}

// Start runs the hub and publishes every reduced action until ctx is done
func (i *Inspector[S]) Start(ctx context.Context) {
	unsubscribe := i.src.Subscribe(func(action store.Action, state S) {
		i.hub.Publish(Event{
			Seq:    i.seq.Add(1),
			Action: action.Type,
			State:  state,
			At:     time.Now().UTC(),
		})
	})
	go func() {
		defer unsubscribe()
		i.hub.Run(ctx)
	}()
}

// Hub exposes the client hub
func (i *Inspector[S]) Hub() *Hub { return i.hub }

// Router builds the inspector's HTTP routes
func (i *Inspector[S]) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(i.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/state", i.handleState)
	router.GET("/ws", i.handleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(i.gatherer, promhttp.HandlerOpts{})))
	return router
}

func (i *Inspector[S]) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"seq":   i.seq.Load(),
		"state": i.src.GetState(),
		"at":    time.Now().UTC(),
	})
}

func (i *Inspector[S]) handleConnection(c *gin.Context) {
	conn, err := i.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		i.logger.Error().Err(err).Str("remoteAddr", c.Request.RemoteAddr).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:    i.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		addr:   conn.RemoteAddr().String(),
		logger: i.logger,
	}
	if !i.hub.attach(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func requestLogger(lg zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		lg.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Inspector request")
	}
}
