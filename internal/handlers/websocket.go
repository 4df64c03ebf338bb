package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereayou/quipe/internal/onboarding"
	ws "github.com/thereayou/quipe/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler подписка вкладки на события своего flow онбординга
type WebSocketHandler struct {
	hub      *ws.Hub
	flows    *onboarding.Store
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWebSocketHandler origins пустой список разрешает только тот же host
func NewWebSocketHandler(hub *ws.Hub, flows *onboarding.Store, origins []string, log *zap.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &WebSocketHandler{
		hub:   hub,
		flows: flows,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed["*"] || allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// HandleOnboarding по токену продолжения подключает к комнате flow
func (h *WebSocketHandler) HandleOnboarding(c *gin.Context) {
	st, err := h.flows.Peek(c.Request.Context(), c.Query("token"))
	if errors.Is(err, onboarding.ErrInvalidToken) {
		errorJSON(c, http.StatusUnauthorized, "Onboarding session expired")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to restore onboarding state")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client, err := ws.NewClient(h.hub, conn, st.FlowID, ws.TypeContinueOnboarding, gin.H{"state": st})
	if err != nil {
		conn.Close()
		return
	}
	if err := h.hub.Register(client); err != nil {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
