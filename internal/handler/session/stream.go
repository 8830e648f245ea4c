package session

import (
	"log"
	"net/http"
	"time"

	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// heartbeatEvery 表示多少个轮询周期发送一次心跳
const heartbeatEvery = 4

// handleNotesStream 通过 SSE 推送会话笔记，供笔记查看页实时刷新
func (h *Handler) handleNotesStream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	log.Printf("[sse] opening notes stream for session=%s", sessionID)

	utils.SendSSEEvent(w, flusher, "status", map[string]any{
		"message": "stream established",
	})

	sent := 0
	push := func() bool {
		notes, err := h.sessions.Notes(ctx, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[sse] loading notes for session=%s failed: %v", sessionID, err)
				utils.SendSSEEvent(w, flusher, "error", map[string]any{"message": "failed to load notes"})
			}
			return false
		}
		for ; sent < len(notes); sent++ {
			utils.SendSSEEvent(w, flusher, "note", notes[sent])
		}
		return true
	}

	if !push() {
		return
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing notes stream for session=%s", sessionID)
			return
		case t := <-ticker.C:
			if !push() {
				return
			}
			ticks++
			if ticks%heartbeatEvery == 0 {
				utils.SendSSEEvent(w, flusher, "heartbeat", map[string]any{
					"time": t.UTC().Format(time.RFC3339),
				})
			}
		}
	}
}
