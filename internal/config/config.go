package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	CameraID    string
	LogLevel    string

	// Video Input
	// Source accepts a file path, a device index ("0") or a stream URL.
	Source    string
	SourceAPI string // OpenCV capture backend: "ffmpeg" or "any"

	// Detection (OpenCV DNN)
	ModelWeights  string
	ModelConfig   string
	ClassNames    string
	InputSize     int
	ConfThreshold float64
	NMSThreshold  float64
	TargetClasses []string

	// Tracking
	TrackMatchIoU float64
	TrackBuffer   int
	TrackMinScore float64
	// CollapseTrackClasses folds every target class into one identity
	// space so a car re-labelled as a truck keeps its track id.
	CollapseTrackClasses bool

	// Lane Geometry
	LanesFile string

	// Statistics
	ReportInterval time.Duration
	StatsWarmup    time.Duration
	ActivityWindow time.Duration

	// Pipeline Queues
	QueueCapacity int
	PutTimeout    time.Duration
	GetTimeout    time.Duration

	// NATS (interval reports)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	// Docker: Use nats://nats:4222 if running worker in Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration // For graceful shutdown
	StatsSubject       string
	PerfSubject        string

	// Report Store (SQLite history)
	StoreEnabled bool
	StorePath    string

	// Presentation Sinks
	DisplayEnabled bool
	OutputPath     string // annotated video file; empty disables the file sink
	OutputFPS      int

	// Web Stream + HTTP API
	HTTPEnabled      bool
	HTTPPort         int
	WebStreamEnabled bool
	MJPEGQuality     int

	// Overlay
	ShowHUD      bool
	ShowLanes    bool
	ShowTrackIDs bool
	OverlayColor string
	OverlayFont  int

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		CameraID:    getEnv("CAMERA_ID", "cam-1"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Video Input
		Source:    getEnv("VIDEO_SOURCE", ""),
		SourceAPI: getEnv("VIDEO_SOURCE_API", "ffmpeg"),

		// Detection
		ModelWeights:  getEnv("MODEL_WEIGHTS", "models/yolov4-tiny.weights"),
		ModelConfig:   getEnv("MODEL_CONFIG", "models/yolov4-tiny.cfg"),
		ClassNames:    getEnv("CLASS_NAMES", "models/coco.names"),
		InputSize:     getEnvInt("MODEL_INPUT_SIZE", 416),
		ConfThreshold: getEnvFloat("CONF_THRESHOLD", 0.4),
		NMSThreshold:  getEnvFloat("NMS_THRESHOLD", 0.45),
		TargetClasses: getEnvList("TARGET_CLASSES", "car,truck,bus,motorbike"),

		// Tracking
		TrackMatchIoU:        getEnvFloat("TRACK_MATCH_IOU", 0.3),
		TrackBuffer:          getEnvInt("TRACK_BUFFER", 30),
		TrackMinScore:        getEnvFloat("TRACK_MIN_SCORE", 0.25),
		CollapseTrackClasses: getEnvBool("COLLAPSE_TRACK_CLASSES", true),

		// Lane Geometry
		LanesFile: getEnv("LANES_FILE", "lanes.json"),

		// Statistics
		ReportInterval: getEnvDuration("REPORT_INTERVAL", 5*time.Second),
		StatsWarmup:    getEnvDuration("STATS_WARMUP", 30*time.Second),
		ActivityWindow: getEnvDuration("ACTIVITY_WINDOW", 60*time.Second),

		// Pipeline Queues
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 50),
		PutTimeout:    getEnvDuration("QUEUE_PUT_TIMEOUT", 2*time.Second),
		GetTimeout:    getEnvDuration("QUEUE_GET_TIMEOUT", 5*time.Second),

		// NATS (configured for Docker Compose setup)
		NatsEnabled:        getEnvBool("NATS_ENABLED", true),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		StatsSubject:       getEnv("STATS_SUBJECT", "traffic.stats"),
		PerfSubject:        getEnv("PERF_SUBJECT", "traffic.perf"),

		// Report Store
		StoreEnabled: getEnvBool("STORE_ENABLED", false),
		StorePath:    getEnv("STORE_PATH", "lanewatch.db"),

		// Presentation Sinks
		DisplayEnabled: getEnvBool("DISPLAY_ENABLED", false),
		OutputPath:     getEnv("OUTPUT_PATH", ""),
		OutputFPS:      getEnvInt("OUTPUT_FPS", 25),

		// Web Stream + HTTP API
		HTTPEnabled:      getEnvBool("HTTP_ENABLED", true),
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		WebStreamEnabled: getEnvBool("WEB_STREAM_ENABLED", true),
		MJPEGQuality:     getEnvInt("MJPEG_QUALITY", 80),

		// Overlay
		ShowHUD:      getEnvBool("SHOW_HUD", true),
		ShowLanes:    getEnvBool("SHOW_LANES", true),
		ShowTrackIDs: getEnvBool("SHOW_TRACK_IDS", true),
		OverlayColor: getEnv("OVERLAY_COLOR", "#00FF7F"),
		OverlayFont:  getEnvInt("OVERLAY_FONT", 2),

		// Logdy (lightweight web log viewer)
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8081),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate reports the first startup problem that must prevent the pipeline
// from running. File checks happen here so a bad deployment fails before any
// stage goroutine starts.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("video source is required (VIDEO_SOURCE or -source)")
	}
	if c.CameraID == "" {
		return fmt.Errorf("camera id must not be empty")
	}
	for _, f := range []struct{ name, path string }{
		{"model weights", c.ModelWeights},
		{"model config", c.ModelConfig},
		{"class names", c.ClassNames},
		{"lanes file", c.LanesFile},
	} {
		if f.path == "" {
			return fmt.Errorf("%s path is required", f.name)
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s not readable: %w", f.name, err)
		}
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("model input size must be positive, got %d", c.InputSize)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %.2f", c.ConfThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold must be in [0,1], got %.2f", c.NMSThreshold)
	}
	if len(c.TargetClasses) == 0 {
		return fmt.Errorf("at least one target class is required")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.PutTimeout <= 0 || c.GetTimeout <= 0 {
		return fmt.Errorf("queue timeouts must be positive")
	}
	if c.TrackBuffer <= 0 {
		return fmt.Errorf("track buffer must be positive, got %d", c.TrackBuffer)
	}
	if c.HTTPEnabled && (c.HTTPPort < 1 || c.HTTPPort > 65535) {
		return fmt.Errorf("http port out of range: %d", c.HTTPPort)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	// Check for Docker-specific environment indicators
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
