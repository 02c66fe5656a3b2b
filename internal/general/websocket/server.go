package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"servicelink/internal/domain/user"
	"servicelink/internal/general/contracts"
	"servicelink/internal/general/jwt"
	"servicelink/internal/general/logger"
	"servicelink/internal/tracking"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server upgrades participant connections, authenticates them with a
// first-frame JWT, and routes inbound events to the tracking coordinator.
type Server struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager
	coord  *tracking.Coordinator
}

// NewServer creates the WebSocket transport adapter.
func NewServer(log *logger.Logger, jwtMgr *jwt.Manager, coord *tracking.Coordinator) *Server {
	return &Server{logger: log, jwtMgr: jwtMgr, coord: coord}
}

// RegisterRoutes attaches the tracking endpoint to the mux.
func (srv *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/tracking", srv.Connect)
}

// Connect handles a participant WebSocket connection for any role.
func (srv *Server) Connect(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	// 2) Set auth deadline
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(authWindow)); err != nil {
		srv.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		srv.sendAuthError(conn, "internal server error")
		return
	}

	// 3) First frame must be the auth message
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			srv.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			srv.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		srv.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}
	if msgType != websocket.TextMessage {
		srv.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		srv.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, srv.jwtMgr, user.RoleCustomer, user.RoleProvider, user.RoleAdmin)
	if err != nil {
		srv.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		srv.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	// Identity is bound once here, from the verified token. Identity claims
	// embedded in later event payloads are cross-checked against this binding
	// and never trusted on their own.
	s := &session{
		id:    uuid.NewString(),
		actor: tracking.Actor{Role: res.Claims.Role, ID: res.Claims.Subject},
		conn:  conn,
	}

	// 4) Send authentication success message
	if err := srv.sendAuthSuccess(s); err != nil {
		srv.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	srv.logger.Info(r.Context(), "ws_connected", "Participant WebSocket connected", map[string]any{
		"session_id": s.id,
		"role":       s.actor.Role.String(),
		"user_id":    s.actor.ID,
	})

	// 5) Reset read deadline after auth
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// 6) Ping loop using the per-connection writer lock
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			if err := s.ping(); err != nil {
				// Close socket to unblock reader; goroutine exits.
				_ = conn.Close()
				srv.logger.Error(r.Context(), "ws_ping_failed", "Failed to send ping", err, map[string]any{
					"session_id": s.id,
				})
				return
			}
		}
	}()

	// 7) Register with the coordinator; clean up every channel on exit
	srv.coord.Connect(s)
	defer srv.coord.Disconnect(s.id)

	// 8) Read loop: route messages
	srv.readLoop(r, s)
}

// readLoop parses inbound envelopes and dispatches them to the coordinator.
// Handler errors are reported to this session only via a scoped error event.
func (srv *Server) readLoop(r *http.Request, s *session) {
	ctx := r.Context()
	conn := s.conn
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				srv.logger.Error(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{
					"session_id": s.id,
				})
				s.writeClose(websocket.CloseInternalServerErr, "internal error")
			} else {
				srv.logger.Info(ctx, "ws_connection_closed", "Connection closed normally", map[string]any{
					"session_id": s.id,
				})
				s.writeClose(websocket.CloseNormalClosure, "bye")
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = s.Send(contracts.EventError, contracts.ErrorEvent{
				Code:    contracts.CodeValidationError,
				Message: "bad json",
			})
			continue
		}

		if err := srv.dispatch(ctx, s, msg); err != nil {
			srv.logger.Error(ctx, "ws_event_failed", "Event handling failed", err, map[string]any{
				"session_id": s.id,
				"event":      msg.Type,
			})
			_ = s.Send(contracts.EventError, tracking.ErrorEventFor(err))
		}
	}
}

// dispatch decodes the event payload for its type and invokes the matching
// coordinator operation.
func (srv *Server) dispatch(ctx context.Context, s *session, msg envelope) error {
	switch msg.Type {
	case contracts.EventJoinTracking:
		var p contracts.JoinTrackingPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return badPayload(err)
		}
		return srv.coord.JoinTracking(ctx, s, p)

	case contracts.EventProviderLocation:
		var p contracts.ProviderLocationPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return badPayload(err)
		}
		return srv.coord.ProviderLocation(ctx, s, p)

	case contracts.EventBookingStatus:
		var p contracts.BookingStatusPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return badPayload(err)
		}
		return srv.coord.BookingStatus(ctx, s, p)

	case contracts.EventProviderAvailability:
		var p contracts.ProviderAvailabilityPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return badPayload(err)
		}
		return srv.coord.ProviderAvailability(ctx, s, p)

	case contracts.EventSendMessage:
		var p contracts.SendMessagePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return badPayload(err)
		}
		return srv.coord.SendMessage(ctx, s, p)

	default:
		return badPayload(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func badPayload(err error) error {
	return fmt.Errorf("%w: %s", tracking.ErrValidation, err)
}

// sendAuthError sends an authentication error message before the session exists.
func (srv *Server) sendAuthError(conn *websocket.Conn, message string) {
	frame, err := json.Marshal(map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}

// sendAuthSuccess confirms the bound identity to the client.
func (srv *Server) sendAuthSuccess(s *session) error {
	return s.Send("auth_success", map[string]any{
		"message":    "Authentication successful",
		"success":    true,
		"session_id": s.id,
		"role":       s.actor.Role.String(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
