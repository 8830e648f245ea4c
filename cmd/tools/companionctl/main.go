package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-companion/backend/internal/config"
	"github.com/zhouzirui/z-companion/backend/internal/database/migrate"
	"github.com/zhouzirui/z-companion/backend/internal/identity"
	"github.com/zhouzirui/z-companion/backend/internal/service/permission"
	sessionService "github.com/zhouzirui/z-companion/backend/internal/service/session"
	"github.com/zhouzirui/z-companion/backend/internal/store/postgres"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:          "companionctl",
		Short:        "Operate the companion backend's database and inspect its read paths",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")

	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	root.AddCommand(newMigrateCmd(), newLatestSessionCmd(withTimeout), newCheckPermissionCmd(withTimeout))
	return root
}

type timeoutFunc func(cmd *cobra.Command) (context.Context, context.CancelFunc)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(func(db *sql.DB) error { return migrate.Up(db) })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration (destroys data)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(func(db *sql.DB) error { return migrate.Down(db) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(func(db *sql.DB) error {
					version, dirty, err := migrate.Version(db)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%v\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func newLatestSessionCmd(withTimeout timeoutFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "latest-session <companionId>",
		Short: "Print the most recent session id for a companion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *sql.DB) error {
				ctx, cancel := withTimeout(cmd)
				defer cancel()

				svc := sessionService.NewService(postgres.NewSessionStore(db))
				latest, err := svc.Latest(ctx, args[0])
				if err != nil {
					return err
				}
				return writeLatest(cmd.OutOrStdout(), latest)
			})
		},
	}
}

func newCheckPermissionCmd(withTimeout timeoutFunc) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "check-permission",
		Short: "Evaluate the companion creation policy for a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Auth.Enabled() {
				return errors.New("AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set")
			}

			return withDB(func(db *sql.DB) error {
				ctx, cancel := withTimeout(cmd)
				defer cancel()

				provider, err := identity.NewJWTProvider(ctx, identity.JWTConfig{
					Issuer:     cfg.Auth.Issuer,
					JWKSURL:    cfg.Auth.JWKSURL,
					SigningKey: []byte(cfg.Auth.SigningKey),
				})
				if err != nil {
					return err
				}

				gate := permission.NewGate(provider, postgres.NewCompanionStore(db), permission.Policy{
					UnlimitedPlans: cfg.Policy.UnlimitedPlans,
					FeatureLimits:  cfg.Policy.FeatureLimits,
				})
				decision := gate.Check(identity.WithToken(ctx, token))
				return writeJSON(cmd.OutOrStdout(), decision)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token to evaluate (empty = anonymous)")
	return cmd
}

func writeLatest(w io.Writer, latest sessionService.Latest) error {
	out := map[string]any{"latest_session_id": nil}
	if latest.Found {
		out["latest_session_id"] = latest.SessionID
	}
	return writeJSON(w, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withDB(fn func(db *sql.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(db)
}
