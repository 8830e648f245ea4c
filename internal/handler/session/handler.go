package session

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-companion/backend/internal/identity"
	"github.com/zhouzirui/z-companion/backend/internal/model/companion"
	sessionService "github.com/zhouzirui/z-companion/backend/internal/service/session"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Handler 会话相关的HTTP处理器
type Handler struct {
	sessions   *sessionService.Service
	companions companion.Store
	identities identity.Provider

	// pollInterval 控制笔记推送流的轮询间隔
	pollInterval time.Duration
}

// New 创建会话处理器
func New(sessions *sessionService.Service, companions companion.Store, identities identity.Provider) *Handler {
	return &Handler{
		sessions:     sessions,
		companions:   companions,
		identities:   identities,
		pollInterval: 2 * time.Second,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/latest-session", h.handleLatestSession)
	r.Get("/latest-session/{companionId}", h.handleLatestSession)

	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionId}/notes", h.handleListNotes)
	r.Post("/sessions/{sessionId}/notes", h.handleAddNote)
	r.Get("/sessions/{sessionId}/notes/stream", h.handleNotesStream)
}

type latestSessionResponse struct {
	LatestSessionID *string `json:"latest_session_id"`
}

// handleLatestSession 返回 companion 最近一次会话的 ID
func (h *Handler) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	companionID := chi.URLParam(r, "companionId")

	latest, err := h.sessions.Latest(r.Context(), companionID)
	if err != nil {
		if errors.Is(err, sessionService.ErrCompanionIDRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[session] latest session lookup failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to look up latest session")
		return
	}

	resp := latestSessionResponse{}
	if latest.Found {
		resp.LatestSessionID = &latest.SessionID
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var payload struct {
		CompanionID string `json:"companionId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.CompanionID == "" {
		utils.RespondError(w, http.StatusBadRequest, sessionService.ErrCompanionIDRequired.Error())
		return
	}

	if _, err := h.companions.FindByID(r.Context(), payload.CompanionID); err != nil {
		if errors.Is(err, companion.ErrNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "companion not found")
			return
		}
		log.Printf("[session] companion lookup failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	created, err := h.sessions.Start(r.Context(), payload.CompanionID, caller.UserID)
	if err != nil {
		log.Printf("[session] create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}

// handleListSessions 列出当前用户的历史会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	items, err := h.sessions.History(r.Context(), caller.UserID, limit)
	if err != nil {
		log.Printf("[session] history failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleListNotes 返回会话笔记
func (h *Handler) handleListNotes(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	notes, err := h.sessions.Notes(r.Context(), sessionID)
	if err != nil {
		h.respondSessionError(w, err, "failed to load notes")
		return
	}
	utils.RespondJSON(w, http.StatusOK, notes)
}

// handleAddNote 保存一条会话笔记
func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := h.sessions.AddNote(r.Context(), sessionID, payload.Role, payload.Content)
	if err != nil {
		if errors.Is(err, sessionService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, sessionService.ErrContentRequired) || errors.Is(err, sessionService.ErrUnsupportedRole) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[session] add note failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save note")
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, note)
}

// requireCaller 解析当前用户，失败时写入错误响应
func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	caller, err := h.identities.CurrentUser(r.Context())
	if err != nil {
		log.Printf("[session] identity resolution failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to resolve caller")
		return nil, false
	}
	if caller == nil {
		utils.RespondError(w, http.StatusUnauthorized, "sign in required")
		return nil, false
	}
	return caller, true
}

// requireOwnedSession 校验会话存在且属于当前用户
func (h *Handler) requireOwnedSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return "", false
	}

	sessionID := chi.URLParam(r, "sessionId")
	record, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.respondSessionError(w, err, "failed to load session")
		return "", false
	}
	if record.UserID != "" && record.UserID != caller.UserID {
		utils.RespondError(w, http.StatusNotFound, sessionService.ErrSessionNotFound.Error())
		return "", false
	}
	return sessionID, true
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, sessionService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Printf("[session] %s: %v", message, err)
	utils.RespondError(w, http.StatusInternalServerError, message)
}
