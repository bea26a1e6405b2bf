package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "contentscore"
	AppDescription = "Content scoring and metric analytics service"
	AppVersion     = "0.1.0"

	// Environment variable prefix read by viper
	EnvPrefix = "CONTENTSCORE"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default configuration values
	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second

	// Storage defaults
	DefaultStorageTimeout = 30 * time.Second
	DefaultLookback       = 90 * 24 * time.Hour

	// Batch defaults
	DefaultWorkerCount = 4
	DefaultBatchSize   = 50
	DefaultQueueSize   = 1000
	DefaultJobTimeout  = 2 * time.Minute
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = time.Second

	// Rate limiting defaults
	DefaultRateLimit  = 600 // requests per minute
	DefaultBurstLimit = 60

	// Request limits
	MaxRequestBodySize = 10 * 1024 * 1024 // 10MB
	MaxBatchItems      = 500

	// Cache defaults
	DefaultCacheTTL = 1 * time.Hour
)

// HTTP headers
const (
	HeaderContentType        = "Content-Type"
	HeaderRequestID          = "X-Request-ID"
	HeaderForwardedFor       = "X-Forwarded-For"
	HeaderRealIP             = "X-Real-IP"
	HeaderRateLimit          = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
	HeaderCache              = "X-Cache"
	HeaderAuthorization      = "Authorization"
	HeaderAPIKey             = "X-API-Key"
)

// Content types
const (
	ContentTypeJSON      = "application/json"
	ContentTypePlainText = "text/plain"
)

// Storage backends
const (
	StorageTypeInfluxDB    = "influxdb"
	StorageTypeTimescaleDB = "timescaledb"
	StorageTypeSQLite      = "sqlite"
	StorageTypeS3          = "s3"
	StorageTypeFile        = "file"
	StorageTypeRedis       = "redis"
	StorageTypeMemory      = "memory"
	StorageTypeNone        = "none"
)

// Output formats
const (
	OutputFormatJSON = "json"
	OutputFormatText = "text"
)

// Job statuses
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Job types
const (
	JobTypeScore    = "score"
	JobTypeAnalyze  = "analyze"
	JobTypeInsights = "insights"
)

// Analysis schedules
const (
	ScheduleDaily   = "daily"
	ScheduleWeekly  = "weekly"
	ScheduleMonthly = "monthly"
)

// Cache namespaces
const (
	CacheNamespaceScore    = "score"
	CacheNamespaceInsights = "insights"
)
