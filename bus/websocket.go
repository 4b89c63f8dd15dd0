package bus

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonwraymond/offlinekit/auth"
	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/resilience"
)

// ServerConfig configures the WebSocket transport.
type ServerConfig struct {
	// Hub tracks connected clients. Required.
	Hub *Hub

	// Handler receives inbound messages. Required.
	Handler Handler

	// Authenticator validates the handshake. Nil accepts every client.
	Authenticator auth.Authenticator

	// RateLimit bounds inbound messages per client.
	// Default: 20 per second, burst 40
	RateLimit resilience.RateLimiterConfig

	// CheckOrigin validates the handshake Origin header.
	// Default: gorilla/websocket same-origin check
	CheckOrigin func(r *http.Request) bool

	// MaxMessageSize bounds one inbound frame.
	// Default: 1 MiB
	MaxMessageSize int64

	// WriteTimeout bounds one outbound frame.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// PongWait is how long a silent client stays connected.
	// Default: 60 seconds
	PongWait time.Duration

	// Logger receives connection events.
	Logger observe.Logger
}

// ErrMissingHub is returned by NewServer without a hub or handler.
var ErrMissingHub = errors.New("bus: hub and handler are required")

// Server upgrades HTTP requests to bus connections.
type Server struct {
	config   ServerConfig
	upgrader websocket.Upgrader
	handler  http.Handler
	logger   observe.Logger
}

// NewServer creates a Server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Hub == nil || config.Handler == nil {
		return nil, ErrMissingHub
	}
	if config.RateLimit.Rate <= 0 {
		config.RateLimit.Rate = 20
	}
	if config.RateLimit.Burst <= 0 {
		config.RateLimit.Burst = 40
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 1 << 20
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.PongWait <= 0 {
		config.PongWait = 60 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: config.Logger.WithOp(observe.OpMeta{Component: "bus", Name: "connection"}),
	}
	s.handler = auth.Middleware(config.Authenticator, http.HandlerFunc(s.serve))
	return s, nil
}

// ServeHTTP authenticates and upgrades the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		s.logger.Debug(r.Context(), "upgrade failed", observe.Field{Key: "error", Value: err.Error()})
		return
	}

	client := s.config.Hub.Register()
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)
	s.logger.Info(ctx, "client connected",
		observe.Field{Key: "client_id", Value: client.ID()},
		observe.Field{Key: "principal", Value: principal},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(conn, client)
	}()

	s.readPump(ctx, conn, client)
	s.config.Hub.Unregister(client)
	<-done
	_ = conn.Close()

	s.logger.Info(ctx, "client disconnected", observe.Field{Key: "client_id", Value: client.ID()})
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, client *Client) {
	limiter := resilience.NewRateLimiter(s.config.RateLimit)
	conn.SetReadLimit(s.config.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn(ctx, "read failed",
					observe.Field{Key: "client_id", Value: client.ID()},
					observe.Field{Key: "error", Value: err.Error()},
				)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.config.PongWait))

		if !limiter.Allow() {
			s.logger.Warn(ctx, "message dropped",
				observe.Field{Key: "client_id", Value: client.ID()},
				observe.Field{Key: "reason", Value: resilience.ErrRateLimitExceeded.Error()},
			)
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			s.logger.Warn(ctx, "message rejected",
				observe.Field{Key: "client_id", Value: client.ID()},
				observe.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		s.config.Handler.HandleMessage(ctx, client.ID(), msg)
	}
}

// writePump is the connection's only writer.
func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ping := time.NewTicker(s.config.PongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				// Unblocks readPump, which unregisters the client.
				_ = conn.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
