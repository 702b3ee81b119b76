package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle-signal/internals/config"
	"github.com/huddlehq/huddle-signal/internals/feed"
	appmetrics "github.com/huddlehq/huddle-signal/internals/metrics"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

// Server exposes the websocket endpoint and the read-only HTTP surface.
type Server struct {
	config     *config.Config
	coord      *Coordinator
	hub        *signaling.Hub
	feed       feed.Publisher
	upgrader   websocket.Upgrader
	clientOpts signaling.ClientOptions
	logger     *zap.Logger
	httpServer *http.Server
	newID      func() string
}

func NewServer(cfg *config.Config, coord *Coordinator, hub *signaling.Hub, publisher feed.Publisher, logger *zap.Logger) *Server {
	if publisher == nil {
		publisher = feed.Noop{}
	}
	return &Server{
		config:   cfg,
		coord:    coord,
		hub:      hub,
		feed:     publisher,
		upgrader: signaling.NewUpgrader(cfg.Server.AllowedOrigins),
		clientOpts: signaling.ClientOptions{
			ReadLimit:  cfg.Transport.WSReadLimit,
			WriteWait:  cfg.Transport.WSWriteTimeout,
			PongWait:   cfg.Transport.WSPongTimeout,
			PingPeriod: cfg.Transport.WSPingInterval,
			SendBuffer: 256,
		},
		logger: logger,
		newID:  func() string { return "conn_" + uuid.NewString() },
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/rooms", s.corsMiddleware(s.handleListRooms))
	mux.HandleFunc("GET /api/rooms/{workspaceId}/{roomId}", s.corsMiddleware(s.handleGetRoom))
	mux.HandleFunc("GET /api/connections/{connectionId}", s.corsMiddleware(s.handleGetConnection))
	mux.HandleFunc("GET /api/presence/{workspaceId}", s.corsMiddleware(s.handleGetPresence))
	mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting signaling server",
		zap.String("host", s.config.Server.Host),
		zap.Int("port", s.config.Server.Port),
	)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		s.hub.CloseAll()
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := signaling.NewClient(s.newID(), conn, s.clientOpts, s.logger)
	client.OnMessage = func(c *signaling.Client, m signaling.Message) {
		s.coord.Dispatch(c.ID, m)
	}
	client.OnDisconnect = func(c *signaling.Client) {
		appmetrics.ConnectionsActive.Dec()
		s.coord.Disconnect(c.ID)
	}

	s.hub.Register(client)
	appmetrics.ConnectionsActive.Inc()

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.coord.Rooms(r.Context(), r.URL.Query().Get("workspaceId"))
	if err != nil {
		s.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms, "total": len(rooms)})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	details, ok, err := s.coord.Room(r.Context(), r.PathValue("workspaceId"), r.PathValue("roomId"))
	if err != nil {
		s.unavailable(w, err)
		return
	}
	if !ok {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	info, ok, err := s.coord.Connection(r.Context(), r.PathValue("connectionId"))
	if err != nil {
		s.unavailable(w, err)
		return
	}
	if !ok {
		http.Error(w, "Connection not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspaceId")
	users, err := s.coord.Presence(r.Context(), workspaceID)
	if err != nil {
		s.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workspaceId": workspaceID, "users": users, "total": len(users)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.Stats(r.Context())
	if err != nil {
		s.unavailable(w, err)
		return
	}

	redisStatus := "connected"
	if !s.config.Redis.Enabled {
		redisStatus = "disabled"
	} else if err := s.feed.Ping(r.Context()); err != nil {
		redisStatus = "error: " + err.Error()
	}

	status := "healthy"
	if redisStatus != "connected" && redisStatus != "disabled" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            status,
		"timestamp":         time.Now(),
		"redis":             redisStatus,
		"rooms":             stats.Rooms,
		"peers":             stats.Peers,
		"presence":          stats.Presence,
		"pendingQuickTalks": stats.PendingQuickTalks,
		"connections":       s.hub.Count(),
	})
}

func (s *Server) unavailable(w http.ResponseWriter, err error) {
	s.logger.Warn("Query failed", zap.Error(err))
	http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
