package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shourk/messaging/backend/internal/handler/chat"
	"github.com/shourk/messaging/backend/internal/handler/realtime"
	middlewarePkg "github.com/shourk/messaging/backend/internal/middleware"
	chatService "github.com/shourk/messaging/backend/internal/service/chat"
	"github.com/shourk/messaging/backend/internal/service/presence"
)

// Dependencies 路由所需的服务
type Dependencies struct {
	ChatService    *chatService.Service
	Registry       *presence.Registry
	Verifier       middlewarePkg.TokenVerifier
	Realtime       realtime.Options
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	deps.Realtime.AllowedOrigins = deps.AllowedOrigins
	realtimeHandler := realtime.New(deps.ChatService, deps.Registry, deps.Verifier, deps.Realtime, deps.Log)
	chatHandler := chat.New(deps.ChatService, deps.Log)

	// 实时通道自行解析身份
	realtimeHandler.RegisterRoutes(r)

	r.Route("/api/message", func(api chi.Router) {
		api.Use(middlewarePkg.Authenticate(deps.Verifier))
		chatHandler.RegisterRoutes(api)
	})

	return r
}
