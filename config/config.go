package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lochel/genealogy/logging"
)

const DefaultTemplateName = "template-family.tex"

const (
	defaultRenderQueueSize     = 100
	defaultNumRenderWorkers    = 2
	defaultRenderTimeout       = 2 * time.Minute
	defaultFamilyImageMaxWidth = 2400
	defaultPortraitMaxSize     = 1200
	defaultMaxUploadBytes      = 10 << 20
	defaultWatchDebounce       = 500 * time.Millisecond
)

const (
	MediaDriverLocal = "local"
	MediaDriverS3    = "s3"
)

type Config struct {
	// record store and derived artefacts
	RelativesDir string // one <id>.md per relative
	ImagesDir    string // portraits, and family diagrams for the local driver
	TexDir       string // generated .tex/.pdf files
	TexTemplate  string // diagram template, embedded default when missing
	DiagramTheme string // optional yaml theme file

	DatabasePath string

	// http
	Port               int
	CORSAllowedOrigins []string
	JWTSecret          string
	MaxUploadBytes     int64

	// rendering
	PdflatexBin         string
	PdftoppmBin         string
	RenderTimeout       time.Duration
	RenderQueueSize     int
	NumRenderWorkers    int
	FamilyImageMaxWidth int
	PortraitMaxSize     int

	WatchRecords  bool
	WatchDebounce time.Duration

	// diagram storage
	MediaDriver string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3PathStyle bool
	// static credentials, the default AWS chain is used when empty
	S3AccessKeyID     string
	S3SecretAccessKey string

	LogLevel string
	LogFile  string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		logging.L().Warnf("config: invalid %s '%s', using default %d: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		logging.L().Warnf("config: invalid %s '%s', using default %t", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		logging.L().Warnf("config: invalid %s '%s', using default %s", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func absPath(key, value string) (string, error) {
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s '%s': %w", key, value, err)
	}
	return abs, nil
}

func LoadConfig() (Config, error) {
	relativesDir, err := absPath("RELATIVES_DIR", getEnvOrDefault("RELATIVES_DIR", filepath.Join("data", "relatives")))
	if err != nil {
		return Config{}, err
	}
	imagesDir, err := absPath("IMAGES_DIR", getEnvOrDefault("IMAGES_DIR", filepath.Join(relativesDir, "images")))
	if err != nil {
		return Config{}, err
	}
	texDir, err := absPath("TEX_DIR", getEnvOrDefault("TEX_DIR", filepath.Join("data", "tex")))
	if err != nil {
		return Config{}, err
	}

	driver := strings.ToLower(getEnvOrDefault("MEDIA_DRIVER", MediaDriverLocal))
	if driver != MediaDriverLocal && driver != MediaDriverS3 {
		return Config{}, fmt.Errorf("unknown MEDIA_DRIVER '%s'", driver)
	}

	cfg := Config{
		RelativesDir: relativesDir,
		ImagesDir:    imagesDir,
		TexDir:       texDir,
		TexTemplate:  getEnvOrDefault("TEX_TEMPLATE", filepath.Join(texDir, DefaultTemplateName)),
		DiagramTheme: os.Getenv("DIAGRAM_THEME"),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", filepath.Join("data", "genealogy.db")),

		Port:               getEnvIntOrDefault("PORT", 8080),
		CORSAllowedOrigins: strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		MaxUploadBytes:     int64(getEnvIntOrDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),

		PdflatexBin:         getEnvOrDefault("PDFLATEX_BIN", "pdflatex"),
		PdftoppmBin:         getEnvOrDefault("PDFTOPPM_BIN", "pdftoppm"),
		RenderTimeout:       getEnvDurationOrDefault("RENDER_TIMEOUT", defaultRenderTimeout),
		RenderQueueSize:     getEnvIntOrDefault("RENDER_QUEUE_SIZE", defaultRenderQueueSize),
		NumRenderWorkers:    getEnvIntOrDefault("NUM_RENDER_WORKERS", defaultNumRenderWorkers),
		FamilyImageMaxWidth: getEnvIntOrDefault("FAMILY_IMAGE_MAX_WIDTH", defaultFamilyImageMaxWidth),
		PortraitMaxSize:     getEnvIntOrDefault("PORTRAIT_MAX_SIZE", defaultPortraitMaxSize),

		WatchRecords:  getEnvBoolOrDefault("WATCH_RECORDS", false),
		WatchDebounce: getEnvDurationOrDefault("WATCH_DEBOUNCE", defaultWatchDebounce),

		MediaDriver: driver,
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Prefix:    os.Getenv("S3_PREFIX"),
		S3PathStyle: getEnvBoolOrDefault("S3_PATH_STYLE", false),

		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}

	for i, origin := range cfg.CORSAllowedOrigins {
		cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if cfg.MediaDriver == MediaDriverS3 && cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("MEDIA_DRIVER=s3 requires S3_BUCKET")
	}

	return cfg, nil
}
