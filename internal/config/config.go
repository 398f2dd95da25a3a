package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBadger   = "badger"

	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderNone   = "none"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	AI       AIConfig
	Pipeline PipelineConfig
	Archive  ArchiveConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	CORSOrigins        []string
}

type StoreConfig struct {
	Kind       string
	CacheSize  int
	BadgerPath string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AIConfig struct {
	Provider           string
	APIKey             string
	BaseURL            string
	Model              string
	Timeout            time.Duration
	MaxRetries         int
	RateLimitPerMinute int
	RateLimitBurst     int
	MaxOutputTokens    int
}

type PipelineConfig struct {
	MaxQuestions           int
	CategoryShareThreshold float64
	InterestRateThreshold  float64
	UploadMaxBytes         int64
}

type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// Load загружает конфигурацию приложения из окружения и .env.
func Load() (Config, error) {
	cfg := Config{}

	if err := loadEnv(); err != nil {
		return cfg, err
	}

	cfg.Env = getEnv("APP_ENV", "local")

	serverPort, err := parseIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return cfg, err
	}

	readTimeout, err := parseDurationEnv("SERVER_READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return cfg, err
	}

	// запись ответа включает генеративные вызовы с повтором
	writeTimeout, err := parseDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return cfg, err
	}

	idleTimeout, err := parseDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return cfg, err
	}

	apiRateLimitPerMinute, err := parseIntEnv("API_RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return cfg, err
	}

	apiRateLimitBurst, err := parseIntEnv("API_RATE_LIMIT_BURST", 30)
	if err != nil {
		return cfg, err
	}

	cfg.Server = ServerConfig{
		Host:               getEnv("SERVER_HOST", "0.0.0.0"),
		Port:               serverPort,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
		RateLimitPerMinute: apiRateLimitPerMinute,
		RateLimitBurst:     apiRateLimitBurst,
		CORSOrigins:        parseCSVEnv("CORS_ALLOWED_ORIGINS"),
	}

	cacheSize, err := parseIntEnv("SESSION_CACHE_SIZE", 1024)
	if err != nil {
		return cfg, err
	}

	cfg.Store = StoreConfig{
		Kind:       strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
		CacheSize:  cacheSize,
		BadgerPath: getEnv("BADGER_PATH", "data/sessions"),
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return cfg, err
	}

	maxOpenConns, err := parseIntEnv("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return cfg, err
	}

	maxIdleConns, err := parseIntEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return cfg, err
	}

	connMaxIdleTime, err := parseDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute)
	if err != nil {
		return cfg, err
	}

	connMaxLifetime, err := parseDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return cfg, err
	}

	cfg.Database = DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            dbPort,
		User:            getEnv("DB_USER", "budget"),
		Password:        getEnv("DB_PASSWORD", "budget"),
		Name:            getEnv("DB_NAME", "budget_pipeline"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxIdleTime: connMaxIdleTime,
		ConnMaxLifetime: connMaxLifetime,
	}

	aiTimeout, err := parseDurationEnv("AI_TIMEOUT", 20*time.Second)
	if err != nil {
		return cfg, err
	}

	aiMaxRetries, err := parseNonNegativeIntEnv("AI_MAX_RETRIES", 1)
	if err != nil {
		return cfg, err
	}

	aiRateLimitPerMinute, err := parseIntEnv("AI_RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return cfg, err
	}

	aiRateLimitBurst, err := parseIntEnv("AI_RATE_LIMIT_BURST", 10)
	if err != nil {
		return cfg, err
	}

	aiMaxOutputTokens, err := parseIntEnv("AI_MAX_OUTPUT_TOKENS", 4096)
	if err != nil {
		return cfg, err
	}

	aiProvider := strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini))
	defaultBaseURL := "https://api.groq.com/openai/v1"
	defaultModel := "llama-3.1-8b-instant"
	if aiProvider == ProviderGemini {
		defaultBaseURL = ""
		defaultModel = "gemini-2.0-flash"
	}

	aiAPIKey := getEnv("AI_API_KEY", "")
	if aiAPIKey == "" && aiProvider == ProviderGemini {
		aiAPIKey = getEnv("GEMINI_API_KEY", "")
	}

	cfg.AI = AIConfig{
		Provider:           aiProvider,
		APIKey:             aiAPIKey,
		BaseURL:            getEnv("AI_BASE_URL", defaultBaseURL),
		Model:              getEnv("AI_MODEL", defaultModel),
		Timeout:            aiTimeout,
		MaxRetries:         aiMaxRetries,
		RateLimitPerMinute: aiRateLimitPerMinute,
		RateLimitBurst:     aiRateLimitBurst,
		MaxOutputTokens:    aiMaxOutputTokens,
	}

	maxQuestions, err := parseIntEnv("CLARIFY_MAX_QUESTIONS", 5)
	if err != nil {
		return cfg, err
	}

	shareThreshold, err := parseFloatEnv("SUGGEST_CATEGORY_SHARE_THRESHOLD", 0.30)
	if err != nil {
		return cfg, err
	}

	rateThreshold, err := parseFloatEnv("SUGGEST_INTEREST_RATE_THRESHOLD", 15)
	if err != nil {
		return cfg, err
	}

	uploadMaxBytes, err := parseIntEnv("UPLOAD_MAX_BYTES", 5<<20)
	if err != nil {
		return cfg, err
	}

	cfg.Pipeline = PipelineConfig{
		MaxQuestions:           maxQuestions,
		CategoryShareThreshold: shareThreshold,
		InterestRateThreshold:  rateThreshold,
		UploadMaxBytes:         int64(uploadMaxBytes),
	}

	useSSL, err := parseBoolEnv("ARCHIVE_S3_USE_SSL", true)
	if err != nil {
		return cfg, err
	}

	cfg.Archive = ArchiveConfig{
		Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		Region:    getEnv("ARCHIVE_S3_REGION", ""),
		AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		UseSSL:    useSSL,
	}

	accessTTL, err := parseDurationEnv("AUTH_ACCESS_TTL", 24*time.Hour)
	if err != nil {
		return cfg, err
	}

	cfg.Auth = AuthConfig{
		JWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		JWTIssuer:      getEnv("AUTH_JWT_ISSUER", "budget-pipeline"),
		AccessTokenTTL: accessTTL,
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// DSN возвращает строку подключения к базе данных.
func (c DatabaseConfig) DSN() string {
	user := url.UserPassword(c.User, c.Password)
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}

	query := url.Values{}
	query.Set("sslmode", c.SSLMode)
	return dsn.String() + "?" + query.Encode()
}

// Enabled сообщает, настроен ли генеративный провайдер.
func (c AIConfig) Enabled() bool {
	return c.Provider != ProviderNone && strings.TrimSpace(c.APIKey) != ""
}

// Enabled сообщает, настроен ли архив загрузок.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Enabled сообщает, включена ли проверка токенов.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

func (c Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("SERVER_PORT must be greater than 0")
	}

	switch c.Store.Kind {
	case StoreMemory, StoreBadger:
	case StorePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}

		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}

		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of memory, postgres, badger")
	}

	if c.Store.Kind == StoreBadger && strings.TrimSpace(c.Store.BadgerPath) == "" {
		return fmt.Errorf("BADGER_PATH is required for the badger store")
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS")
	}

	switch c.AI.Provider {
	case ProviderGemini, ProviderGroq, ProviderNone:
	default:
		return fmt.Errorf("AI_PROVIDER must be one of gemini, groq, none")
	}

	if c.AI.MaxRetries > 5 {
		return fmt.Errorf("AI_MAX_RETRIES cannot exceed 5")
	}

	if c.Pipeline.CategoryShareThreshold <= 0 || c.Pipeline.CategoryShareThreshold >= 1 {
		return fmt.Errorf("SUGGEST_CATEGORY_SHARE_THRESHOLD must be within (0, 1)")
	}

	if c.Pipeline.InterestRateThreshold <= 0 || c.Pipeline.InterestRateThreshold > 100 {
		return fmt.Errorf("SUGGEST_INTEREST_RATE_THRESHOLD must be a percentage within (0, 100]")
	}

	if c.Archive.Enabled() && c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_S3_ENDPOINT is set")
	}

	if c.Auth.Enabled() && c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("AUTH_ACCESS_TTL must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func parseIntEnv(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

func parseNonNegativeIntEnv(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return parsed, nil
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}

	return parsed, nil
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}

	return parsed, nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

func parseCSVEnv(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func loadEnv() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}
