package realtime

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/taskhive/backend/internal/model"
	"github.com/taskhive/backend/internal/service"
)

// Gate authenticates websocket handshakes with the same access
// credential the request gate uses. There is no refresh flow here: an
// expired token simply fails the handshake, and reconnecting with a
// freshly refreshed token is the client's job.
type Gate struct {
	svc      *service.AuthService
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

func NewGate(svc *service.AuthService, hub *Hub, allowedOrigins []string, log *logrus.Logger) *Gate {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			originMap[trimmed] = struct{}{}
		}
	}

	return &Gate{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := originMap[origin]
				return ok
			},
		},
		log: log,
	}
}

// Handle authenticates and upgrades a connection, binding the subject
// identity to it and auto-joining its per-user room.
func (g *Gate) Handle(c *gin.Context) {
	accessToken := extractToken(c)
	if accessToken == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Authentication token required"})
		return
	}

	user, err := g.svc.AuthenticateAccessToken(c.Request.Context(), accessToken)
	if err != nil {
		var authErr *service.AuthError
		msg := "Invalid or expired token"
		if errors.As(err, &authErr) && authErr.Code == model.CodeUserNotFound {
			msg = "User not found"
		}
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: msg})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &Conn{hub: g.hub, ws: ws, user: user, send: make(chan []byte, sendBuffer)}
	g.hub.add(conn)

	go conn.writePump()
	go conn.readPump()
}

// extractToken checks the access cookie first, then the explicit
// handshake fallbacks used by non-browser clients.
func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		return cookie
	}
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
