package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/shourk/messaging/backend/internal/middleware"
	"github.com/shourk/messaging/backend/internal/model/chat"
	chatService "github.com/shourk/messaging/backend/internal/service/chat"
	"github.com/shourk/messaging/backend/pkg/utils"
)

var validate = validator.New()

// Handler 消息服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	log     zerolog.Logger
}

// New 创建消息处理器
func New(chatSvc *chatService.Service, log zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		log:     log.With().Str("component", "http.message").Logger(),
	}
}

// RegisterRoutes 注册消息相关的路由，调用方需先挂载认证中间件
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/logginuser", h.handleLoggedInUser)
	r.Get("/unread", h.handleUnread(chat.DomainUserExpert))

	// 用户与专家
	r.Get("/users", h.handleCounterparts(chat.DomainUserExpert))
	r.Get("/{id}", h.handleConversation(chat.DomainUserExpert))
	r.Post("/send/{id}", h.handleSend(chat.DomainUserExpert))
	r.Post("/read/{id}", h.handleMarkRead(chat.DomainUserExpert))
	r.Delete("/delete", h.handleDeleteOne)
	r.Delete("/deleteallmessage", h.handleDeleteConversation(true))
	r.Put("/edit", h.handleEdit)

	// 专家与专家
	r.Route("/expert", func(er chi.Router) {
		er.Use(middleware.RequireRole(chat.RoleExpert, "user not allowed, this is expert to expert chat"))
		er.Get("/", h.handleCounterparts(chat.DomainExpertExpert))
		er.Get("/unread", h.handleUnread(chat.DomainExpertExpert))
		er.Get("/{id}", h.handleConversation(chat.DomainExpertExpert))
		er.Post("/send/{id}", h.handleSend(chat.DomainExpertExpert))
		er.Post("/read/{id}", h.handleMarkRead(chat.DomainExpertExpert))
		er.Delete("/delete", h.handleDeleteOne)
		// 专家端只传 receiverId，发起方即当前专家
		er.Delete("/deleteallmessage", h.handleDeleteConversation(false))
		er.Put("/edit", h.handleEdit)
	})
}

// handleLoggedInUser 返回当前身份
func (h *Handler) handleLoggedInUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFrom(r.Context())
	utils.RespondJSON(w, http.StatusOK, caller)
}

func (h *Handler) handleCounterparts(domain chat.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middleware.CallerFrom(r.Context())
		list, err := h.chatSvc.Counterparts(r.Context(), caller, domain)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"counterparts": list})
	}
}

func (h *Handler) handleUnread(domain chat.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middleware.CallerFrom(r.Context())
		counts, err := h.chatSvc.UnreadCounts(r.Context(), caller, domain)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"unreadCounts": counts})
	}
}

func (h *Handler) handleConversation(domain chat.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middleware.CallerFrom(r.Context())
		messages, err := h.chatSvc.Conversation(r.Context(), caller, chi.URLParam(r, "id"), domain)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
	}
}

type sendRequest struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments" validate:"max=20,dive,required"`
}

func (h *Handler) handleSend(domain chat.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sendRequest
		if !decodeAndValidate(w, r, &payload) {
			return
		}

		caller, _ := middleware.CallerFrom(r.Context())
		msg, err := h.chatSvc.Send(r.Context(), caller, chi.URLParam(r, "id"), payload.Text, payload.Attachments, domain)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusCreated, msg)
	}
}

func (h *Handler) handleMarkRead(domain chat.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middleware.CallerFrom(r.Context())
		n, err := h.chatSvc.MarkRead(r.Context(), caller, chi.URLParam(r, "id"), domain)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"message":      "Messages marked as read",
			"updatedCount": n,
		})
	}
}

type deleteOneRequest struct {
	MessageID string `json:"messageID" validate:"required"`
}

func (h *Handler) handleDeleteOne(w http.ResponseWriter, r *http.Request) {
	var payload deleteOneRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	caller, _ := middleware.CallerFrom(r.Context())
	res, err := h.chatSvc.DeleteOne(r.Context(), caller, payload.MessageID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if res.AlreadyDeleted {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"message":        "Message already deleted or not found",
			"alreadyDeleted": true,
		})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Message deleted successfully",
		"deleted": true,
	})
}

// deleteConversationRequest 兼容旧客户端的 reciverID 拼写
type deleteConversationRequest struct {
	SenderID         string `json:"senderID"`
	ReceiverID       string `json:"receiverID"`
	LegacyReceiverID string `json:"reciverID"`
}

func (p deleteConversationRequest) receiver() string {
	if p.ReceiverID != "" {
		return p.ReceiverID
	}
	return p.LegacyReceiverID
}

// handleDeleteConversation 删除双方全部消息。requireSender 为 false 时
// senderID 可省略，默认为当前身份。
func (h *Handler) handleDeleteConversation(requireSender bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload deleteConversationRequest
		if !decodeAndValidate(w, r, &payload) {
			return
		}

		caller, _ := middleware.CallerFrom(r.Context())
		if payload.SenderID == "" {
			if requireSender {
				utils.RespondError(w, http.StatusBadRequest, "senderID is required")
				return
			}
			payload.SenderID = caller.ID
		}
		if payload.receiver() == "" {
			utils.RespondError(w, http.StatusBadRequest, "receiverID is required")
			return
		}

		res, err := h.chatSvc.DeleteConversation(r.Context(), caller, payload.SenderID, payload.receiver())
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		if res.AlreadyDeleted {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"message":        "No messages found to delete",
				"alreadyDeleted": true,
			})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"message":      "Messages deleted for everyone",
			"deletedCount": res.Deleted,
		})
	}
}

type editRequest struct {
	MessageID string `json:"messageID" validate:"required"`
	NewText   string `json:"newText"`
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	var payload editRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	caller, _ := middleware.CallerFrom(r.Context())
	msg, err := h.chatSvc.Edit(r.Context(), caller, payload.MessageID, payload.NewText)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// respondServiceError 将业务错误映射为HTTP状态码
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrInvalidPayload):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrUnauthorized):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chatService.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chatService.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
