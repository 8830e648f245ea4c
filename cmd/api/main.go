package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/zhouzirui/z-companion/backend/internal/config"
	"github.com/zhouzirui/z-companion/backend/internal/database/migrate"
	"github.com/zhouzirui/z-companion/backend/internal/handler"
	"github.com/zhouzirui/z-companion/backend/internal/identity"
	"github.com/zhouzirui/z-companion/backend/internal/model/companion"
	"github.com/zhouzirui/z-companion/backend/internal/model/session"
	"github.com/zhouzirui/z-companion/backend/internal/service/permission"
	sessionService "github.com/zhouzirui/z-companion/backend/internal/service/session"
	"github.com/zhouzirui/z-companion/backend/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	deps := handler.Deps{AllowedOrigins: cfg.Server.AllowedOrigins}

	// Initialize stores: Postgres when configured, in-memory otherwise
	var (
		companions companion.Store
		sessions   session.Store
	)
	if cfg.Database.Enabled() {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer func() { _ = db.Close() }()

		if cfg.Database.AutoMigrate {
			if err := migrate.Up(db); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}

		companions = postgres.NewCompanionStore(db)
		sessions = postgres.NewSessionStore(db)
		deps.DB = db
		log.Println("Postgres stores initialized successfully")
	} else {
		seed := companion.Seed()
		if cfg.SeedFile != "" {
			seed, err = companion.LoadSeedFile(cfg.SeedFile)
			if err != nil {
				log.Fatalf("failed to load companion seed: %v", err)
			}
		}
		companions = companion.NewMemoryStore(seed)
		sessions = session.NewMemoryStore()
		log.Println("DATABASE_URL 未配置，使用内存存储")
	}

	// Initialize identity provider
	var identities identity.Provider
	if cfg.Auth.Enabled() {
		identities, err = identity.NewJWTProvider(ctx, identity.JWTConfig{
			Issuer:     cfg.Auth.Issuer,
			JWKSURL:    cfg.Auth.JWKSURL,
			SigningKey: []byte(cfg.Auth.SigningKey),
		})
		if err != nil {
			log.Fatalf("failed to initialize identity provider: %v", err)
		}
		log.Println("Identity provider initialized successfully")
	} else {
		identities = identity.ProviderFunc(func(context.Context) (*identity.Identity, error) { return nil, nil })
		log.Println("身份认证未配置，所有请求视为匿名用户")
	}

	policy := permission.Policy{
		UnlimitedPlans: cfg.Policy.UnlimitedPlans,
		FeatureLimits:  cfg.Policy.FeatureLimits,
	}

	deps.Companions = companions
	deps.Sessions = sessionService.NewService(sessions)
	deps.Gate = permission.NewGate(identities, companions, policy)
	deps.Identities = identities

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router)
}

func openDatabase(ctx context.Context, dbCfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbCfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(dbCfg.MaxOpenConns)
	db.SetMaxIdleConns(dbCfg.MaxOpenConns)
	db.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Companion backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
