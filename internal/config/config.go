package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Policy   PolicyConfig

	// SeedFile 为空时使用内置的 companion 列表。
	SeedFile string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	policy, err := loadPolicyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Database: database,
		Auth:     auth,
		Policy:   policy,
		SeedFile: strings.TrimSpace(os.Getenv("COMPANION_SEED_FILE")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string

	// AllowedOrigins 可携带凭据跨域访问 API 的来源。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	for _, o := range origins {
		if o == "*" || (!strings.HasPrefix(o, "https://") && !strings.HasPrefix(o, "http://")) {
			return ServerConfig{}, fmt.Errorf("invalid CORS_ALLOWED_ORIGINS entry: %q", o)
		}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// DatabaseConfig 描述 Postgres 连接配置。
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Enabled 表示是否配置了数据库；未配置时使用内存存储。
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	maxOpen := 10
	if override, err := parseOptionalIntEnv("DATABASE_MAX_OPEN_CONNS"); err != nil {
		return DatabaseConfig{}, err
	} else if override != nil {
		if *override < 1 {
			maxOpen = 1
		} else {
			maxOpen = *override
		}
	}

	lifetime := 30 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("DATABASE_CONN_MAX_LIFETIME")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_CONN_MAX_LIFETIME value %q: %w", raw, err)
		}
		lifetime = parsed
	}

	autoMigrate, err := parseBoolEnv("DATABASE_AUTO_MIGRATE", true)
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{
		URL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxOpenConns:    maxOpen,
		ConnMaxLifetime: lifetime,
		AutoMigrate:     autoMigrate,
	}, nil
}

// AuthConfig 描述身份提供方的令牌校验配置。
type AuthConfig struct {
	Issuer     string
	JWKSURL    string
	SigningKey string
}

// Enabled 表示是否提供了校验令牌所需的密钥来源。
func (c AuthConfig) Enabled() bool {
	return c.JWKSURL != "" || c.SigningKey != ""
}

func loadAuthConfig() (AuthConfig, error) {
	cfg := AuthConfig{
		Issuer:     strings.TrimSpace(os.Getenv("AUTH_ISSUER")),
		JWKSURL:    strings.TrimSpace(os.Getenv("AUTH_JWKS_URL")),
		SigningKey: strings.TrimSpace(os.Getenv("AUTH_SIGNING_KEY")),
	}
	if cfg.JWKSURL != "" && !strings.HasPrefix(cfg.JWKSURL, "https://") && !strings.HasPrefix(cfg.JWKSURL, "http://") {
		return AuthConfig{}, fmt.Errorf("invalid AUTH_JWKS_URL value: %q", cfg.JWKSURL)
	}
	return cfg, nil
}

// PolicyConfig 描述创建 companion 的配额规则。
type PolicyConfig struct {
	UnlimitedPlans []string
	FeatureLimits  map[string]int
}

func loadPolicyConfig() (PolicyConfig, error) {
	plans := splitList(getEnvOrDefault("COMPANION_UNLIMITED_PLANS", "pro"))

	limits, err := parseLimits(getEnvOrDefault("COMPANION_FEATURE_LIMITS", "3_companion_limit:3,10_companion_limit:10"))
	if err != nil {
		return PolicyConfig{}, err
	}

	return PolicyConfig{UnlimitedPlans: plans, FeatureLimits: limits}, nil
}

// parseLimits 解析 "feature:n,feature:n" 形式的配额表。
func parseLimits(raw string) (map[string]int, error) {
	limits := make(map[string]int)
	for _, entry := range splitList(raw) {
		name, value, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid COMPANION_FEATURE_LIMITS entry %q", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid COMPANION_FEATURE_LIMITS limit for %s: %q", name, value)
		}
		limits[name] = n
	}
	return limits, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
