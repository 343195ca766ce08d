package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gensite/internal/generator"
	"gensite/internal/history"
	"gensite/internal/project"
	"gensite/internal/protocol"
	"gensite/internal/session"
)

const (
	pingInterval   = 30 * time.Second
	readDeadline   = 60 * time.Second
	writeDeadline  = 10 * time.Second
	sendBufferSize = 256
)

var (
	errClientClosed = errors.New("client closed")
	errSendBuffer   = errors.New("client send buffer full")
)

// Submitter accepts generation requests for a session.
type Submitter interface {
	Submit(sessionID string, req generator.Request) error
}

// FileCounter reports the number of files in the project.
type FileCounter interface {
	Count() int
}

// Options wires a Server to the rest of the application. History and Files
// are optional.
type Options struct {
	Registry       *session.Registry
	Generations    Submitter
	History        history.Store
	Project        *project.Store
	Files          FileCounter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server manages WebSocket connections and the REST API.
type Server struct {
	registry    *session.Registry
	generations Submitter
	history     history.Store
	project     *project.Store
	files       FileCounter
	origins     map[string]bool
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

type client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	server    *Server

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// New creates a new realtime server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry:    opts.Registry,
		generations: opts.Generations,
		history:     opts.History,
		project:     opts.Project,
		files:       opts.Files,
		origins:     make(map[string]bool),
		logger:      logger,
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[strings.TrimRight(o, "/")] = true
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ws/{sessionID}", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/files", s.handleCreateFile)
		r.Get("/files/download", s.handleDownload)
		r.Get("/files/*", s.handleReadFile)
		r.Get("/project", s.handleProject)
		r.Get("/templates", s.handleTemplates)
		r.Get("/sessions/{sessionID}/events", s.handleSessionEvents)
	})

	return r
}

// allowOrigin reports whether origin may use the API. An empty allow-list
// admits every origin.
func (s *Server) allowOrigin(origin string) bool {
	if len(s.origins) == 0 || origin == "" {
		return true
	}
	return s.origins[strings.TrimRight(origin, "/")]
}

func (s *Server) checkOrigin(r *http.Request) bool {
	return s.allowOrigin(r.Header.Get("Origin"))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.origins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && s.allowOrigin(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket and binds it to
// the session named in the path.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", sessionID, "err", err)
		return
	}

	c := &client{
		id:        uuid.New().String(),
		sessionID: sessionID,
		conn:      conn,
		server:    s,
		send:      make(chan []byte, sendBufferSize),
	}

	// Connect before reading history so no live event falls between the two.
	s.registry.Connect(c, sessionID)
	s.logger.Info("client connected", "session", sessionID, "conn", c.id)

	var backlog [][]byte
	if r.URL.Query().Get("replay") == "true" {
		backlog = s.backlog(r.Context(), c)
	}

	go c.writePump(backlog)
	go c.readPump()
}

// backlog returns the session's recent events encoded for c.
func (s *Server) backlog(ctx context.Context, c *client) [][]byte {
	if s.history == nil {
		return nil
	}
	events, err := s.history.Recent(ctx, c.sessionID)
	if err != nil {
		s.logger.Warn("failed to load history", "session", c.sessionID, "err", err)
		return nil
	}
	frames := make([][]byte, 0, len(events))
	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			s.logger.Warn("skipping history event", "session", c.sessionID, "type", events[i].Type, "err", err)
			continue
		}
		frames = append(frames, data)
	}
	return frames
}

func (c *client) ID() string {
	return c.id
}

// Send queues data without blocking. A client whose buffer is full is
// closed.
func (c *client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closed = true
		close(c.send)
		return errSendBuffer
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", "session", c.sessionID, "conn", c.id, "err", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes the replayed backlog, then messages queued on send.
// Queued events already present in the backlog are dropped.
func (c *client) writePump(backlog [][]byte) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	replayed := make(map[string]struct{}, len(backlog))
	for _, frame := range backlog {
		c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
		replayed[string(frame)] = struct{}{}
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Only a prefix of the queue can overlap the backlog.
			if len(replayed) > 0 {
				if _, dup := replayed[string(message)]; dup {
					delete(replayed, string(message))
					continue
				}
				replayed = nil
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.registry.Disconnect(c, c.sessionID)
	c.close()
	s.logger.Info("client disconnected", "session", c.sessionID, "conn", c.id)
}

// handleMessage processes a client message. Unsupported types are ignored;
// malformed messages are answered on the sending connection only.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if errors.Is(err, protocol.ErrUnsupportedType) {
		s.logger.Debug("ignoring message", "session", c.sessionID, "conn", c.id, "type", msg.Type)
		return
	}
	if err != nil {
		s.logger.Warn("invalid client message", "session", c.sessionID, "conn", c.id, "err", err)
		s.sendError(c, "Error: "+err.Error())
		return
	}

	req := generator.Request{Prompt: msg.Prompt, Template: msg.Template}
	if err := s.generations.Submit(c.sessionID, req); err != nil {
		s.logger.Error("failed to submit generation", "session", c.sessionID, "err", err)
		s.sendError(c, "Error: "+err.Error())
	}
}

func (s *Server) sendError(c *client, message string) {
	event, err := protocol.NewErrorEvent(message)
	if err != nil {
		return
	}
	if err := s.registry.Send(c, event); err != nil {
		s.logger.Debug("failed to send error", "session", c.sessionID, "conn", c.id, "err", err)
	}
}
