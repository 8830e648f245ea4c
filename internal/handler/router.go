package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-companion/backend/internal/handler/companion"
	"github.com/zhouzirui/z-companion/backend/internal/handler/permission"
	"github.com/zhouzirui/z-companion/backend/internal/handler/session"
	"github.com/zhouzirui/z-companion/backend/internal/identity"
	middlewarePkg "github.com/zhouzirui/z-companion/backend/internal/middleware"
	companionModel "github.com/zhouzirui/z-companion/backend/internal/model/companion"
	permissionService "github.com/zhouzirui/z-companion/backend/internal/service/permission"
	sessionService "github.com/zhouzirui/z-companion/backend/internal/service/session"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps groups the services the router wires into handlers.
type Deps struct {
	Companions companionModel.Store
	Sessions   *sessionService.Service
	Gate       *permissionService.Gate
	Identities identity.Provider

	// DB is optional; when set /healthz pings it.
	DB Pinger

	// AllowedOrigins may make credentialed cross-origin requests.
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))
	r.Use(identity.Middleware)

	r.Get("/healthz", healthHandler(deps.DB))

	companionHandler := companion.New(deps.Companions, deps.Gate)
	sessionHandler := session.New(deps.Sessions, deps.Companions, deps.Identities)
	permissionHandler := permission.New(deps.Gate)

	r.Route("/api", func(api chi.Router) {
		companionHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		permissionHandler.RegisterRoutes(api)
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				log.Printf("[health] database ping failed: %v", err)
				utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
