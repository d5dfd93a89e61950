package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Supabase  SupabaseConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Limits    LimitsConfig
	Functions FunctionsConfig
	Storage   StorageConfig
	Profile   ProfileConfig
	Extension ExtensionConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port            string
	BaseURL         string
	ShutdownTimeout time.Duration
	MaxRequests     int
	RequestTimeout  time.Duration
	CacheExpiration time.Duration
	BodyLimit       int
	AllowedOrigins  string
	Environment     string
	// TrustedProxies may set X-Forwarded-For. Requests from anywhere else are
	// identified by their socket address.
	TrustedProxies []string
}

// SupabaseConfig keeps the variable names the web app already uses so the
// same .env file serves both deployments.
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	SessionCookie  string
}

type DatabaseConfig struct {
	URL string
}

type KafkaConfig struct {
	Broker       string
	Topic        string
	Group        string
	RetryMax     int
	RetryBackoff time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LimitsConfig struct {
	WaitlistMax    int
	WaitlistWindow time.Duration
	FeedbackMax    int
	FeedbackWindow time.Duration
	PruneInterval  time.Duration
}

type FunctionsConfig struct {
	GenerateCoverLetter string
	CompilePDF          string
	ExtractProfile      string
	Timeout             time.Duration
	RetryBackoff        time.Duration
}

type StorageConfig struct {
	ResumeBucket     string
	ScreenshotBucket string
	TempDir          string
	MaxResumeSize    int64
	MaxScreenshot    int64
}

type ProfileConfig struct {
	DefaultCredits int
	OAuthCredits   int
}

type ExtensionConfig struct {
	Dir      string
	FileName string
}

type WorkerConfig struct {
	StatsRefreshInterval time.Duration
	StatsRPC             string
}

func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            loadEnv("PORT", ":8080"),
			BaseURL:         loadEnv("APP_BASE_URL", ""),
			ShutdownTimeout: time.Duration(loadEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 5)) * time.Second,
			MaxRequests:     loadEnvAsInt("SERVER_MAX_REQUESTS", 100),
			RequestTimeout:  time.Duration(loadEnvAsInt("SERVER_REQUEST_TIMEOUT", 60)) * time.Second,
			CacheExpiration: time.Duration(loadEnvAsInt("SERVER_CACHE_EXPIRATION", 60)) * time.Second,
			BodyLimit:       loadEnvAsInt("SERVER_BODY_LIMIT", 12*1024*1024),
			AllowedOrigins:  loadEnv("CORS_ALLOWED_ORIGINS", "*"),
			Environment:     loadEnv("NODE_ENV", loadEnv("GO_ENV", "development")),
			TrustedProxies:  loadEnvAsList("TRUSTED_PROXIES"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(loadEnv("NEXT_PUBLIC_SUPABASE_URL", loadEnv("SUPABASE_URL", "")), "/"),
			AnonKey:        loadEnv("NEXT_PUBLIC_SUPABASE_ANON_KEY", loadEnv("SUPABASE_ANON_KEY", "")),
			ServiceRoleKey: loadEnv("SUPABASE_SERVICE_ROLE_KEY", loadEnv("SUPABASE_SERVICE_KEY", "")),
			JWTSecret:      loadEnv("SUPABASE_JWT_SECRET", ""),
			SessionCookie:  loadEnv("SESSION_COOKIE_NAME", "sb-access-token"),
		},
		Database: DatabaseConfig{
			URL: loadEnv("DATABASE_URL", ""),
		},
		Kafka: KafkaConfig{
			Broker:       loadEnv("KAFKA_BROKER", ""),
			Topic:        loadEnv("KAFKA_TOPIC", "usage-events"),
			Group:        loadEnv("KAFKA_GROUP", "stats-workers"),
			RetryMax:     loadEnvAsInt("KAFKA_RETRY_MAX", 5),
			RetryBackoff: time.Duration(loadEnvAsInt("KAFKA_RETRY_BACKOFF", 500)) * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     loadEnv("REDIS_ADDR", ""),
			Password: loadEnv("REDIS_PASSWORD", ""),
			DB:       loadEnvAsInt("REDIS_DB", 0),
		},
		Limits: LimitsConfig{
			WaitlistMax:    loadEnvAsInt("WAITLIST_RATE_MAX", 5),
			WaitlistWindow: time.Duration(loadEnvAsInt("WAITLIST_RATE_WINDOW_MINUTES", 15)) * time.Minute,
			FeedbackMax:    loadEnvAsInt("FEEDBACK_RATE_MAX", 3),
			FeedbackWindow: time.Duration(loadEnvAsInt("FEEDBACK_RATE_WINDOW_MINUTES", 30)) * time.Minute,
			PruneInterval:  time.Duration(loadEnvAsInt("RATE_LIMIT_PRUNE_SECONDS", 300)) * time.Second,
		},
		Functions: FunctionsConfig{
			GenerateCoverLetter: loadEnv("FUNCTION_GENERATE_COVER_LETTER", "generate-cover-letter"),
			CompilePDF:          loadEnv("FUNCTION_COMPILE_PDF", "compile-pdf"),
			ExtractProfile:      loadEnv("FUNCTION_EXTRACT_PROFILE", "extract-profile"),
			Timeout:             time.Duration(loadEnvAsInt("FUNCTION_TIMEOUT", 60)) * time.Second,
			RetryBackoff:        time.Duration(loadEnvAsInt("FUNCTION_RETRY_BACKOFF_MS", 1000)) * time.Millisecond,
		},
		Storage: StorageConfig{
			ResumeBucket:     loadEnv("STORAGE_RESUME_BUCKET", "resumes"),
			ScreenshotBucket: loadEnv("STORAGE_SCREENSHOT_BUCKET", "feedback-screenshots"),
			TempDir:          loadEnv("STORAGE_TEMP_DIR", "/tmp/swiftletter"),
			MaxResumeSize:    loadEnvAsInt64("STORAGE_MAX_RESUME_SIZE", 10*1024*1024),  // 10MB
			MaxScreenshot:    loadEnvAsInt64("STORAGE_MAX_SCREENSHOT_SIZE", 5*1024*1024), // 5MB
		},
		Profile: ProfileConfig{
			DefaultCredits: loadEnvAsInt("PROFILE_DEFAULT_CREDITS", 3),
			OAuthCredits:   loadEnvAsInt("PROFILE_OAUTH_CREDITS", 5),
		},
		Extension: ExtensionConfig{
			Dir:      loadEnv("EXTENSION_DIR", "./extension"),
			FileName: loadEnv("EXTENSION_ZIP_NAME", "swift-letter-extension.zip"),
		},
		Worker: WorkerConfig{
			StatsRefreshInterval: time.Duration(loadEnvAsInt("STATS_REFRESH_INTERVAL", 30)) * time.Second,
			StatsRPC:             loadEnv("STATS_REFRESH_RPC", "refresh_app_stats"),
		},
	}
}

// IsProduction reports whether error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// HasPublic reports whether the settings handed to browsers are present.
func (c SupabaseConfig) HasPublic() bool {
	return c.URL != "" && c.AnonKey != ""
}

func (c SupabaseConfig) HasService() bool {
	return c.URL != "" && c.ServiceRoleKey != ""
}

func loadEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func loadEnvAsInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func loadEnvAsInt64(key string, defaultVal int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// loadEnvAsList splits a comma separated variable, dropping empty items.
func loadEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
