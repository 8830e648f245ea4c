package companion

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-companion/backend/internal/model/companion"
	"github.com/zhouzirui/z-companion/backend/internal/service/permission"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Handler companion服务的HTTP处理器
type Handler struct {
	companions companion.Store
	gate       *permission.Gate
}

// New 创建companion处理器
func New(companions companion.Store, gate *permission.Gate) *Handler {
	return &Handler{
		companions: companions,
		gate:       gate,
	}
}

// RegisterRoutes 注册companion相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/companions", h.handleListCompanions)
	r.Post("/companions", h.handleCreateCompanion)
	r.Get("/companions/{companionId}", h.handleGetCompanion)
}

// handleListCompanions 列出 companion
func (h *Handler) handleListCompanions(w http.ResponseWriter, r *http.Request) {
	filter := companion.Filter{
		Subject: strings.TrimSpace(r.URL.Query().Get("subject")),
		Author:  strings.TrimSpace(r.URL.Query().Get("author")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	items, err := h.companions.List(r.Context(), filter)
	if err != nil {
		log.Printf("[companion] list failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list companions")
		return
	}
	if items == nil {
		items = []companion.Companion{}
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleGetCompanion 返回单个 companion
func (h *Handler) handleGetCompanion(w http.ResponseWriter, r *http.Request) {
	item, err := h.companions.FindByID(r.Context(), chi.URLParam(r, "companionId"))
	if err != nil {
		if errors.Is(err, companion.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[companion] lookup failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load companion")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}

type createCompanionRequest struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Voice    string `json:"voice"`
	Style    string `json:"style"`
	Duration int    `json:"duration"`
}

func (req createCompanionRequest) validate() error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return errors.New("name is required")
	case strings.TrimSpace(req.Subject) == "":
		return errors.New("subject is required")
	case strings.TrimSpace(req.Topic) == "":
		return errors.New("topic is required")
	case req.Duration < 0 || req.Duration > 240:
		return errors.New("duration must be between 0 and 240 minutes")
	}
	return nil
}

// handleCreateCompanion 在通过权限检查后创建 companion
func (h *Handler) handleCreateCompanion(w http.ResponseWriter, r *http.Request) {
	decision := h.gate.Check(r.Context())
	if !decision.Allowed {
		status := http.StatusForbidden
		switch {
		case decision.Failed():
			status = http.StatusInternalServerError
		case decision.Reason == permission.ReasonUnauthenticated:
			status = http.StatusUnauthorized
		}
		utils.RespondJSON(w, status, decision)
		return
	}

	var payload createCompanionRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := payload.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := h.gate.CurrentUser(r.Context())
	if err != nil || caller == nil {
		log.Printf("[companion] caller vanished after permission check: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to resolve caller")
		return
	}

	created, err := h.companions.Create(r.Context(), companion.Companion{
		Name:     strings.TrimSpace(payload.Name),
		Subject:  strings.ToLower(strings.TrimSpace(payload.Subject)),
		Topic:    strings.TrimSpace(payload.Topic),
		Voice:    payload.Voice,
		Style:    payload.Style,
		Duration: payload.Duration,
		Author:   caller.UserID,
	})
	if err != nil {
		log.Printf("[companion] create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create companion")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}
