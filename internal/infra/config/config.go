package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig describes configuration for all services.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	CronSecret    string `envconfig:"CRON_SECRET"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	Site struct {
		BaseURL  string `envconfig:"SITE_BASE_URL" default:"https://evnewswire.app"`
		Hashtags string `envconfig:"SITE_HASHTAGS" default:"#EV #ChinaEV"`
	} `envconfig:""`

	X struct {
		APIKey            string        `envconfig:"X_API_KEY"`
		APIKeySecret      string        `envconfig:"X_API_KEY_SECRET"`
		AccessToken       string        `envconfig:"X_ACCESS_TOKEN"`
		AccessTokenSecret string        `envconfig:"X_ACCESS_TOKEN_SECRET"`
		Timeout           time.Duration `envconfig:"X_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Publish struct {
		MaxAttempts      int           `envconfig:"PUBLISH_MAX_ATTEMPTS" default:"2"`
		MaxPerRun        int           `envconfig:"PUBLISH_MAX_PER_RUN" default:"5"`
		DailyPostLimit   int           `envconfig:"DAILY_POST_LIMIT" default:"10"`
		MinScore         int           `envconfig:"MIN_RELEVANCE_SCORE" default:"40"`
		AutoApproveScore int           `envconfig:"AUTO_APPROVE_SCORE" default:"70"`
		InterPostDelay   time.Duration `envconfig:"INTER_POST_DELAY" default:"30s"`
		AttemptTimeout   time.Duration `envconfig:"PUBLISH_ATTEMPT_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Digest struct {
		Size       int `envconfig:"DIGEST_SIZE" default:"4"`
		MinMembers int `envconfig:"DIGEST_MIN_MEMBERS" default:"2"`
	} `envconfig:""`

	Schedule struct {
		PublishCron string `envconfig:"PUBLISH_CRON" default:"*/30 * * * *"`
		DigestCron  string `envconfig:"DIGEST_CRON" default:"0 18 * * *"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	} `envconfig:""`

	ImageGen struct {
		BaseURL string        `envconfig:"IMAGEGEN_BASE_URL"`
		APIKey  string        `envconfig:"IMAGEGEN_API_KEY"`
		Timeout time.Duration `envconfig:"IMAGEGEN_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Charts struct {
		BaseURL string        `envconfig:"CHARTS_BASE_URL"`
		Timeout time.Duration `envconfig:"CHARTS_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Quotes struct {
		BaseURL string        `envconfig:"QUOTES_BASE_URL"`
		APIKey  string        `envconfig:"QUOTES_API_KEY"`
		TTL     time.Duration `envconfig:"QUOTES_TTL" default:"15m"`
		Timeout time.Duration `envconfig:"QUOTES_TIMEOUT" default:"10s"`
	} `envconfig:""`

	S3 struct {
		Endpoint  string `envconfig:"S3_ENDPOINT"`
		Region    string `envconfig:"S3_REGION" default:"us-east-1"`
		Bucket    string `envconfig:"S3_BUCKET"`
		AccessKey string `envconfig:"S3_ACCESS_KEY"`
		SecretKey string `envconfig:"S3_SECRET_KEY"`
		PublicURL string `envconfig:"S3_PUBLIC_URL"`
	} `envconfig:""`

	AMQP struct {
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_ALERTS_EXCHANGE" default:"ops.alerts"`
	} `envconfig:""`
}

// Load reads .env when present and then the process environment.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
