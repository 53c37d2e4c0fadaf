// Package broadcaster implements the room server that relays scene content
// commands between collaborating clients over raw TCP and WebSocket.
package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/metrics"
	"github.com/luciancaetano/scenecast/internal/protocol"
	"github.com/luciancaetano/scenecast/internal/transport"
)

// Defaults applied by New to a zero ServerConfig.
const (
	DefaultSendQueueSize = scenecast.DefaultSendQueueSize
	DefaultPollTimeout   = scenecast.DefaultPollTimeout
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called when a new client connects, before its read loop
// starts. It runs on the client's goroutine; keep it short.
type OnConnectFn = func(client scenecast.Client)

// OnClientDisconnectFn is invoked when a connected client goes away. voluntary
// is true when the peer closed the connection, false when the server dropped
// it (protocol error, rate limit, slow consumer or shutdown).
type OnClientDisconnectFn = func(client scenecast.Client, voluntary bool)

// HandlerFn handles a scene content command after it has been stored and
// forwarded to the sender's room.
type HandlerFn = func(client scenecast.Client, cmd *protocol.Command)

type ServerConfig struct {
	// TCPAddr is the raw frame listener address. Empty disables it.
	TCPAddr string
	// HTTPAddr serves the WebSocket and metrics endpoints. Empty disables it.
	HTTPAddr string

	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	Policy         transport.Policy
	SendQueueSize  int
	KeepEmptyRooms bool

	Logger *zap.Logger
	// Registry receives the server metrics and backs the metrics endpoint.
	// A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many commands a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration.
// Scene uploads arrive in bursts, so the bucket is sized for a full mesh
// upload: 1000 commands per second with a burst of 2000.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 1000,
		Burst:             2000,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server implements the scenecast.Server interface
type Server struct {
	cfg      ServerConfig
	rooms    *Rooms
	handlers sync.Map // map[protocol.MessageType]HandlerFn
	ids      *protocol.IDAllocator
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	running    bool
	tcpLn      net.Listener
	httpLn     net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader
	wg         sync.WaitGroup
}

// New creates a server. Nothing is bound until Start.
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Policy == (transport.Policy{}) {
		cfg.Policy = transport.DefaultPolicy()
		cfg.Policy.PollTimeout = DefaultPollTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	ids := protocol.NewIDAllocator(protocol.FirstCommandID)
	m := metrics.New(cfg.Registry, "")
	log := cfg.Logger.Named("broadcaster")

	return &Server{
		cfg:      *cfg,
		rooms:    NewRooms(ids, cfg.KeepEmptyRooms, log, m),
		ids:      ids,
		log:      log,
		registry: cfg.Registry,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Start binds the configured listeners and starts accepting clients.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New(scenecast.ErrServerAlreadyRunning)
	}

	var lc net.ListenConfig
	if s.cfg.TCPAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", s.cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
		}
		s.tcpLn = ln
	}
	if s.cfg.HTTPAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
		if err != nil {
			if s.tcpLn != nil {
				s.tcpLn.Close()
				s.tcpLn = nil
			}
			return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
		}
		s.httpLn = ln
	}
	s.running = true

	if s.tcpLn != nil {
		s.wg.Add(1)
		go s.acceptLoop(s.tcpLn)
		s.log.Info("tcp listener started", zap.String("addr", s.tcpLn.Addr().String()))
	}
	if s.httpLn != nil {
		router := chi.NewRouter()
		router.Use(middleware.Recoverer)
		router.Get(scenecast.WebSocketPath, s.handleWebSocket)
		router.Method(http.MethodGet, scenecast.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

		s.httpServer = &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.wg.Add(1)
		go func(srv *http.Server, ln net.Listener) {
			defer s.wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("http server stopped", zap.Error(err))
			}
		}(s.httpServer, s.httpLn)
		s.log.Info("http listener started", zap.String("addr", s.httpLn.Addr().String()))
	}
	return nil
}

// Stop closes the listeners and every client connection.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	tcpLn, httpServer := s.tcpLn, s.httpServer
	s.tcpLn, s.httpLn, s.httpServer = nil, nil, nil
	s.mu.Unlock()

	var errs []error
	if tcpLn != nil {
		if err := tcpLn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	for _, client := range s.rooms.Clients() {
		client.CloseWithCode(ctx, websocket.CloseGoingAway, "server shutting down")
	}

	s.wg.Wait()
	s.log.Info("server stopped")
	return errors.Join(errs...)
}

// TCPAddr returns the bound raw frame listener address, or "" when none.
func (s *Server) TCPAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tcpLn == nil {
		return ""
	}
	return s.tcpLn.Addr().String()
}

// HTTPAddr returns the bound HTTP listener address, or "" when none.
func (s *Server) HTTPAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// RegisterHandler registers a handler for a scene content message type.
// Room management types are handled by the server and cannot be overridden.
func (s *Server) RegisterHandler(ctx context.Context, t protocol.MessageType, handler func(client scenecast.Client, cmd *protocol.Command)) error {
	if !t.IsContentMessage() {
		return fmt.Errorf("%s: %s", scenecast.ErrReservedMessageType, t)
	}
	s.handlers.Store(t, HandlerFn(handler))
	return nil
}

// Broadcast queues cmd for every connected client.
func (s *Server) Broadcast(ctx context.Context, cmd *protocol.Command) error {
	var errs []error
	for _, client := range s.rooms.Clients() {
		if err := client.Send(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("client %s: %w", client.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// NewCommand builds a command whose id comes from the server's allocator.
func (s *Server) NewCommand(t protocol.MessageType, data []byte) *protocol.Command {
	return s.ids.NewCommand(t, data, 0)
}

// Rooms returns the server's room registry.
func (s *Server) Rooms() *Rooms {
	return s.rooms
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.serve(transport.NewNetChannel(conn))
	}
}

// handleWebSocket upgrades an HTTP request into a client connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	// One frame travels per message, so nothing larger is ever legitimate.
	conn.SetReadLimit(s.cfg.Policy.FrameLimit())
	s.serve(transport.NewWSChannel(conn))
}

func (s *Server) serve(ch transport.Channel) {
	endpoint := transport.NewEndpoint(ch, transport.EndpointConfig{
		IDs:     s.ids,
		Policy:  s.cfg.Policy,
		Logger:  s.log,
		Metrics: s.metrics,
	})
	client := NewClient(endpoint, s.cfg.RateLimitConfig, s.cfg.SendQueueSize, s.log)
	s.rooms.Add(client)
	s.metrics.ClientConnected()
	client.log.Info("client connected")

	go s.handleClient(client)
}

// handleClient reads commands from a connected client until it goes away.
func (s *Server) handleClient(client *Client) {
	voluntary := false
	defer func() {
		s.rooms.Remove(client)
		s.metrics.ClientDisconnected()
		client.Close(context.Background())
		client.log.Info("client disconnected", zap.Bool("voluntary", voluntary))

		if s.cfg.OnClientDisconnect != nil {
			s.cfg.OnClientDisconnect(client, voluntary)
		}
	}()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(client)
	}

	for {
		if client.Context().Err() != nil {
			return
		}

		cmd, err := client.endpoint.TryReceive()
		if err != nil {
			switch {
			case errors.Is(err, protocol.ErrUnknownMessageType):
				// The payload was drained; the stream is still aligned.
				client.log.Warn("ignoring command", zap.Error(err))
				continue
			case errors.Is(err, protocol.ErrPeerDisconnected):
				voluntary = client.Context().Err() == nil
				return
			default:
				client.log.Warn("protocol error, closing client", zap.Error(err))
				client.CloseWithCode(context.Background(), websocket.CloseProtocolError, scenecast.ErrInvalidMessageFormat)
				return
			}
		}
		if cmd == nil {
			continue
		}

		if !client.CheckRateLimit() {
			client.log.Warn("rate limit exceeded")
			s.metrics.Error("rate_limited")
			client.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, scenecast.ErrRateLimitExceeded)
			return
		}

		s.dispatch(client, cmd)
	}
}
