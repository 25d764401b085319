package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backends for the token store and pending-enrollment cache.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendDynamo = "dynamo"
)

// Snapshot sinks for the memory backend.
const (
	SnapshotFile = "file"
	SnapshotS3   = "s3"
	SnapshotNone = "none"
)

// Delivery channels for verification codes.
const (
	DeliverySMTP = "smtp"
	DeliverySNS  = "sns"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath  string
	JWTPublicKeyPath   string
	JWTExpiry          time.Duration
	RefreshTokenExpiry time.Duration

	OTP OTPConfig

	ExpiringBackend   string
	ExpiringRetention time.Duration // kept past expiry on remote backends so "expired" stays distinguishable from "unknown"
	SnapshotSink      string
	SnapshotDir       string
	SnapshotBucket    string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	DeliveryChannel string
	SMTPHost        string
	SMTPPort        string
	SMTPFrom        string
	SMTPUsername    string
	SMTPPassword    string
	SNSRegion       string
	SNSTopicARN     string

	AllowedOrigins []string // CORS allowed origins
}

// OTPConfig controls code shape and the lifetimes of tokens and pending enrollments.
type OTPConfig struct {
	Length        int
	TTL           time.Duration
	PendingTTL    time.Duration
	MaxAttempts   int // 0 disables the attempt limit
	SweepInterval time.Duration
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users    string
	Sessions string
	Tokens   string
	Pending  string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:    getEnv("DYNAMO_TABLE_USERS", "users"),
			Sessions: getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			Tokens:   getEnv("DYNAMO_TABLE_VERIFICATION_TOKENS", "verification_tokens"),
			Pending:  getEnv("DYNAMO_TABLE_PENDING_ENROLLMENTS", "pending_enrollments"),
		},
		JWTPrivateKeyPath:  getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:   getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:          getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		RefreshTokenExpiry: getEnvDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour),
		OTP: OTPConfig{
			Length:        getEnvInt("OTP_LENGTH", 6),
			TTL:           getEnvDuration("OTP_TTL", 10*time.Minute),
			PendingTTL:    getEnvDuration("PENDING_TTL", 10*time.Minute),
			MaxAttempts:   getEnvInt("OTP_MAX_ATTEMPTS", 5),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		},
		ExpiringBackend:   getEnv("EXPIRING_BACKEND", BackendMemory),
		ExpiringRetention: getEnvDuration("EXPIRING_RETENTION", 5*time.Minute),
		SnapshotSink:      getEnv("SNAPSHOT_SINK", SnapshotFile),
		SnapshotDir:       getEnv("SNAPSHOT_DIR", "./data"),
		SnapshotBucket:    getEnv("SNAPSHOT_BUCKET", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		DeliveryChannel:   getEnv("DELIVERY_CHANNEL", DeliverySMTP),
		SMTPHost:          getEnv("SMTP_HOST", "localhost"),
		SMTPPort:          getEnv("SMTP_PORT", "1025"),
		SMTPFrom:          getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:       getEnv("SNS_TOPIC_ARN", ""),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate rejects combinations the process cannot start with.
func (c *Config) Validate() error {
	switch c.ExpiringBackend {
	case BackendMemory, BackendRedis, BackendDynamo:
	default:
		return fmt.Errorf("EXPIRING_BACKEND must be one of memory, redis, dynamo; got %q", c.ExpiringBackend)
	}
	switch c.SnapshotSink {
	case SnapshotFile, SnapshotNone:
	case SnapshotS3:
		if c.SnapshotBucket == "" {
			return fmt.Errorf("SNAPSHOT_BUCKET is required when SNAPSHOT_SINK=s3")
		}
	default:
		return fmt.Errorf("SNAPSHOT_SINK must be one of file, s3, none; got %q", c.SnapshotSink)
	}
	switch c.DeliveryChannel {
	case DeliverySMTP:
	case DeliverySNS:
		if c.SNSTopicARN == "" {
			return fmt.Errorf("SNS_TOPIC_ARN is required when DELIVERY_CHANNEL=sns")
		}
	default:
		return fmt.Errorf("DELIVERY_CHANNEL must be one of smtp, sns; got %q", c.DeliveryChannel)
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10; got %d", c.OTP.Length)
	}
	if c.OTP.TTL <= 0 || c.OTP.PendingTTL <= 0 || c.OTP.SweepInterval <= 0 {
		return fmt.Errorf("OTP_TTL, PENDING_TTL and SWEEP_INTERVAL must be positive")
	}
	if c.OTP.MaxAttempts < 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
