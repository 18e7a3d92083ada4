package config

import "time"

// Storage drivers accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	DBDriver           string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	LiveRedisAddr      string
	LiveRedisPass      string
	LiveRedisChannel   string
	LiveHeartbeat      time.Duration
	StorageDir         string
	PublicBaseURL      string
	UploadTokenTTL     time.Duration
	UploadMaxBytes     int64
	CommentMaxLength   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		DBDriver:           GetString("DB_DRIVER", DriverPostgres),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://hackhub:hackhub@db:5432/hackhub?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", ""),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     GetMinutes("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTokenTTL:    time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24*7)) * time.Hour,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		LiveRedisAddr:      GetString("LIVE_REDIS_ADDR", ""),
		LiveRedisPass:      GetString("LIVE_REDIS_PASSWORD", ""),
		LiveRedisChannel:   GetString("LIVE_REDIS_CHANNEL", "hackhub:live"),
		LiveHeartbeat:      time.Duration(GetInt("LIVE_HEARTBEAT_SECONDS", 15)) * time.Second,
		StorageDir:         GetString("STORAGE_DIR", "./data/blobs"),
		PublicBaseURL:      GetString("PUBLIC_BASE_URL", "http://localhost:4000"),
		UploadTokenTTL:     GetMinutes("UPLOAD_TOKEN_TTL_MIN", 10),
		UploadMaxBytes:     GetInt64("UPLOAD_MAX_BYTES", 5<<20),
		CommentMaxLength:   GetInt("COMMENT_MAX_LENGTH", 2000),
	}
}
