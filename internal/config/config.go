package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Detector holds the immutable settings of the detection pipeline.
// It is passed by value so no component can mutate another's copy.
type Detector struct {
	DefaultConfThreshold float64
	ImageSize            int
	NMSThreshold         float64
	ModelsDir            string
	DefaultModel         string
	ModelExt             string
	Device               string // auto, cpu or cuda
	VideoCodec           string
	VideoExt             string
	MaxUploadMB          int64
}

// DefaultSecretKey signs tokens when SECRET_KEY is unset. Development only.
const DefaultSecretKey = "change-me"

type Config struct {
	Port            int
	GRPCPort        int
	CORSOrigins     []string
	RateLimitPerMin int

	SecretKey  string
	TokenTTL   time.Duration
	AdminUsers []string

	DatabasePath string

	LogDirectory string
	LogLevel     string

	UploadDirectory  string
	OutputDirectory  string
	StagingRetention time.Duration
	CleanupInterval  time.Duration

	KafkaBrokers string
	KafkaTopic   string

	Detector Detector
}

// Load reads .env (when present) and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnvAsInt("PORT", 8000),
		GRPCPort:        getEnvAsInt("GRPC_PORT", 50051),
		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:8080", "http://localhost:8081"}),
		RateLimitPerMin: getEnvAsInt("DETECT_RATE_LIMIT", 30),

		SecretKey:  getEnv("SECRET_KEY", DefaultSecretKey),
		TokenTTL:   getEnvAsDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		AdminUsers: getEnvAsList("ADMIN_USERS", nil),

		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(".", "data", "detect.db")),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		UploadDirectory:  getEnv("UPLOAD_DIR", "uploads"),
		OutputDirectory:  getEnv("OUTPUT_DIR", "outputs"),
		StagingRetention: getEnvAsDuration("STAGING_RETENTION", 24*time.Hour),
		CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "detections"),

		Detector: LoadDetector(),
	}
}

// LoadDetector returns the detector settings with defaults applied.
func LoadDetector() Detector {
	return Detector{
		DefaultConfThreshold: getEnvAsFloat("DEFAULT_CONF_THRESHOLD", 0.25),
		ImageSize:            getEnvAsInt("IMGSZ", 640),
		NMSThreshold:         getEnvAsFloat("NMS_THRESHOLD", 0.45),
		ModelsDir:            getEnv("MODELS_DIR", "models"),
		DefaultModel:         getEnv("MODEL_NAME", "yolo11n.onnx"),
		ModelExt:             getEnv("MODEL_EXT", ".onnx"),
		Device:               strings.ToLower(getEnv("DEVICE", "auto")),
		VideoCodec:           getEnv("VIDEO_CODEC", "mp4v"),
		VideoExt:             getEnv("VIDEO_EXT", ".mp4"),
		MaxUploadMB:          getEnvAsInt64("MAX_UPLOAD_MB", 512),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
