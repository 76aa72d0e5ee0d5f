package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log-shipping configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	MaxUploadMB     int
}

// MediaConfig locates generated media on disk and its optional S3 mirror.
type MediaConfig struct {
	Root     string
	S3Bucket string
	S3Prefix string
}

// ExtractConfig tunes the PDF extraction pipeline.
type ExtractConfig struct {
	MaxPages           int
	MaxImageCrops      int
	MaxTextCrops       int
	MaxTotalCrops      int
	MaxRenderDimension int
	BaseRenderScale    float64

	// Engine selects the primary rasterizer: "pdfium" (default, probes
	// the out-of-process helper first) or "fitz" (in-process only).
	Engine        string
	PdfiumPython  string
	PdfiumScript  string
	PdfiumTimeout time.Duration
}

// MatchConfig tunes the question-crop matcher.
type MatchConfig struct {
	// Mode "v1" enables promotion of a multiple-choice question to
	// image-based when no image questions exist. Empty keeps the output
	// shape unchanged.
	Mode string
}

// VisionConfig controls the optional LLM vision tie-break.
type VisionConfig struct {
	Enabled       bool
	Engine        string // "openai" | "anthropic"
	Model         string
	MaxQuestions  int
	MaxCandidates int
	Timeout       time.Duration
	OpenAIKey     string
	AnthropicKey  string
}

// RedisConfig holds job status store connectivity. Empty URL keeps status
// in memory.
type RedisConfig struct {
	URL string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Media   MediaConfig
	Extract ExtractConfig
	Match   MatchConfig
	Vision  VisionConfig
	Redis   RedisConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/quizassets.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_quizassets",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "50"), 50),
	}

	cfg.Media = MediaConfig{
		Root:     getEnv("MEDIA_ROOT", "generated-media"),
		S3Bucket: getEnv("QUIZ_MEDIA_S3_BUCKET", ""),
		S3Prefix: getEnv("QUIZ_MEDIA_S3_PREFIX", "generated-media"),
	}

	cfg.Extract = ExtractConfig{
		MaxPages:           parseInt(getEnv("QUIZ_PDF_MAX_RENDER_PAGES", "20"), 20),
		MaxImageCrops:      parseInt(getEnv("QUIZ_PDF_MAX_IMAGE_CROPS", "4"), 4),
		MaxTextCrops:       parseInt(getEnv("QUIZ_PDF_MAX_TEXT_CROPS", "6"), 6),
		MaxTotalCrops:      parseInt(getEnv("QUIZ_PDF_MAX_TOTAL_CROPS", "36"), 36),
		MaxRenderDimension: parseInt(getEnv("QUIZ_PDF_MAX_RENDER_DIMENSION", "2400"), 2400),
		BaseRenderScale:    parseFloat(getEnv("QUIZ_PDF_RENDER_SCALE", "2.4"), 2.4),
		Engine:             getEnv("PDF_RENDER_ENGINE", "pdfium"),
		PdfiumPython:       getEnv("PDFIUM_PYTHON", ""),
		PdfiumScript:       getEnv("PDFIUM_SCRIPT", "scripts/pdfium_extract_assets.py"),
		PdfiumTimeout:      parseDuration(getEnv("PDFIUM_TIMEOUT", "3m"), 3*time.Minute),
	}

	cfg.Match = MatchConfig{
		Mode: getEnv("IMAGE_MATCH_MODE", ""),
	}

	cfg.Vision = VisionConfig{
		Enabled:       parseBool(getEnv("VISION_MATCH_ENABLED", "0")),
		Engine:        getEnv("VISION_ENGINE", "openai"),
		Model:         getEnv("VISION_MATCH_MODEL", "gpt-4o"),
		MaxQuestions:  parseInt(getEnv("VISION_MATCH_MAX_QUESTIONS", "3"), 3),
		MaxCandidates: parseInt(getEnv("VISION_MATCH_MAX_CANDIDATES", "4"), 4),
		Timeout:       parseDuration(getEnv("VISION_MATCH_TIMEOUT", "30s"), 30*time.Second),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicKey:  getEnv("ANTHROPIC_API_KEY", ""),
	}

	cfg.Redis = RedisConfig{
		URL: getEnv("REDIS_URL", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
