package permission

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-companion/backend/internal/service/permission"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Handler 权限检查的HTTP处理器
type Handler struct {
	gate *permission.Gate
}

// New 创建权限处理器
func New(gate *permission.Gate) *Handler {
	return &Handler{gate: gate}
}

// RegisterRoutes 注册权限相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/check-companion-permissions", h.handleCheck)
}

// handleCheck 返回当前用户能否创建新的 companion
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	decision := h.gate.Check(r.Context())
	utils.RespondJSON(w, StatusFor(decision), decision)
}

// StatusFor maps a decision to the HTTP status used when reporting it as-is.
func StatusFor(decision permission.Decision) int {
	if decision.Failed() {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
