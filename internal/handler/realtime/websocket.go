package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/shourk/messaging/backend/internal/middleware"
	"github.com/shourk/messaging/backend/internal/model/chat"
	chatService "github.com/shourk/messaging/backend/internal/service/chat"
	"github.com/shourk/messaging/backend/internal/service/presence"
	"github.com/shourk/messaging/backend/pkg/utils"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 64 << 10
)

// Options 实时连接参数
type Options struct {
	RequireToken    bool
	OutboxSize      int
	FramesPerSecond float64
	FrameBurst      int
	AllowedOrigins  []string
}

// Handler 实时连接处理器：WebSocket 为主，SSE 为只读降级通道
type Handler struct {
	chatSvc  *chatService.Service
	registry *presence.Registry
	verifier middleware.TokenVerifier
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New 创建实时连接处理器
func New(chatSvc *chatService.Service, registry *presence.Registry, verifier middleware.TokenVerifier, opts Options, log zerolog.Logger) *Handler {
	if opts.FramesPerSecond <= 0 {
		opts.FramesPerSecond = 10
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = 20
	}
	h := &Handler{
		chatSvc:  chatSvc,
		registry: registry,
		verifier: verifier,
		opts:     opts,
		log:      log.With().Str("component", "realtime").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// RegisterRoutes 注册实时路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/events", h.handleEvents)
	r.Get("/up", h.handleUp)
}

func (h *Handler) handleUp(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(h.opts.AllowedOrigins, "*") || lo.Contains(h.opts.AllowedOrigins, origin)
}

// identify 解析连接身份。携带令牌时必须有效；未携带时按配置允许以 userId 或匿名方式连接，
// 但此类连接只能接收推送，不能执行操作。
func (h *Handler) identify(r *http.Request) (string, *chat.Caller, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if raw != "" {
		caller, err := h.verifier.Verify(raw)
		if err != nil {
			return "", nil, err
		}
		return caller.ID, &caller, nil
	}
	if h.opts.RequireToken {
		return "", nil, errAuthRequired
	}
	return r.URL.Query().Get("userId"), nil, nil
}

type wsClient struct {
	*outbox
	conn          *websocket.Conn
	participantID string
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	participantID, caller, err := h.identify(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		outbox:        newOutbox(h.opts.OutboxSize),
		conn:          conn,
		participantID: participantID,
	}
	go h.writePump(client)

	h.registry.Connect(participantID, client)
	h.log.Debug().Str("participant", participantID).Msg("websocket connected")
	defer func() {
		h.registry.Disconnect(client)
		client.close()
		h.log.Debug().Str("participant", participantID).Msg("websocket disconnected")
	}()

	h.readLoop(r.Context(), client, caller)
}

func (h *Handler) readLoop(ctx context.Context, client *wsClient, caller *chat.Caller) {
	conn := client.conn
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.opts.FramesPerSecond), h.opts.FrameBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("participant", client.participantID).Msg("websocket read failed")
			}
			return
		}

		if !limiter.Allow() {
			_ = client.push(errorFrame("", codeRateLimited, "rate limit exceeded"))
			continue
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			_ = client.push(errorFrame("", codeInvalidPayload, "invalid frame payload"))
			continue
		}

		h.handleAction(ctx, client.outbox, caller, in)
	}
}

// writePump 是连接上唯一的写入者
func (h *Handler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case f := <-client.frames:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(f); err != nil {
				h.log.Debug().Err(err).Str("participant", client.participantID).Msg("websocket write failed")
				client.close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.close()
				return
			}
		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
