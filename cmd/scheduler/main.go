package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"ev-newswire/internal/adapters/alerts"
	"ev-newswire/internal/adapters/charts"
	"ev-newswire/internal/adapters/composer"
	"ev-newswire/internal/adapters/imagegen"
	"ev-newswire/internal/adapters/images"
	"ev-newswire/internal/adapters/quotes"
	"ev-newswire/internal/adapters/repo"
	"ev-newswire/internal/adapters/storage"
	"ev-newswire/internal/adapters/xapi"
	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/cache"
	"ev-newswire/internal/infra/config"
	"ev-newswire/internal/infra/db"
	applog "ev-newswire/internal/infra/log"
	"ev-newswire/internal/infra/metrics"
	"ev-newswire/internal/infra/openai"
	"ev-newswire/internal/usecase/digest"
	"ev-newswire/internal/usecase/publish"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: database connection failed")
	}
	defer pool.Close()

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("scheduler: REDIS_ADDR is required")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	appCache := cache.NewRedis(redisClient)

	store := repo.NewPostgres(pool)

	var alertPublisher domain.AlertPublisher = alerts.NewNoop()
	if cfg.AMQP.URL != "" {
		rabbit, err := alerts.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: alert publisher setup failed")
		}
		defer rabbit.Close()
		alertPublisher = rabbit
	}

	platform := xapi.NewClient(xapi.Config{
		Credentials: xapi.Credentials{
			ConsumerKey:    cfg.X.APIKey,
			ConsumerSecret: cfg.X.APIKeySecret,
			AccessToken:    cfg.X.AccessToken,
			AccessSecret:   cfg.X.AccessTokenSecret,
		},
		Timeout: cfg.X.Timeout,
	})

	fetcher := images.NewFetcher(0)
	var generator domain.ImageGenerator
	if cfg.ImageGen.BaseURL != "" {
		generator = imagegen.NewClient(imagegen.Config{
			BaseURL: cfg.ImageGen.BaseURL,
			APIKey:  cfg.ImageGen.APIKey,
			Timeout: cfg.ImageGen.Timeout,
		})
	}
	var chartRenderer domain.ChartRenderer
	if cfg.Charts.BaseURL != "" {
		chartRenderer = charts.NewClient(charts.Config{
			BaseURL: cfg.Charts.BaseURL,
			Timeout: cfg.Charts.Timeout,
		})
	}
	var blobs domain.BlobStore
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: blob store setup failed")
		}
		blobs = s3Store
	}

	quoteProvider := quotes.NewClient(quotes.Config{
		BaseURL: cfg.Quotes.BaseURL,
		APIKey:  cfg.Quotes.APIKey,
		TTL:     cfg.Quotes.TTL,
		Timeout: cfg.Quotes.Timeout,
	}, appCache)

	formatter := publish.NewFormatter(cfg.Site.BaseURL, cfg.Site.Hashtags, quoteProvider)
	resolver := publish.NewImageResolver(fetcher, generator, chartRenderer, blobs, store, store, cfg.Publish.AutoApproveScore, logger)
	executor := publish.NewExecutor(store, store, platform, formatter, resolver, alertPublisher, cfg.Publish.MaxAttempts, cfg.Publish.AttemptTimeout, logger)
	runner := publish.NewRunner(store, store, executor, alertPublisher, appCache, cfg.Publish.InterPostDelay, cfg.Publish.DailyPostLimit, cfg.Publish.MaxPerRun, logger)

	var textComposer domain.TextComposer = composer.NewSimple()
	if cfg.OpenAI.APIKey != "" {
		chat := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		textComposer = composer.NewFallback(
			composer.NewOpenAI(chat, cfg.OpenAI.Model, cfg.OpenAI.Timeout),
			composer.NewSimple(),
		)
	}
	digestService := digest.NewService(store, textComposer, executor, runner, cfg.Digest.Size, cfg.Digest.MinMembers, cfg.Publish.MinScore, cfg.Publish.AutoApproveScore, logger)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc(cfg.Schedule.PublishCron, func() {
		if _, err := runner.Run(ctx, domain.NewsProfile(cfg.Publish.AutoApproveScore)); err != nil {
			logger.Error().Err(err).Msg("scheduler: publish run failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Schedule.PublishCron).Msg("scheduler: invalid publish schedule")
	}

	if _, err := c.AddFunc(cfg.Schedule.DigestCron, func() {
		if _, err := digestService.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler: digest run failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Schedule.DigestCron).Msg("scheduler: invalid digest schedule")
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	c.Start()
	logger.Info().
		Str("publish_cron", cfg.Schedule.PublishCron).
		Str("digest_cron", cfg.Schedule.DigestCron).
		Msg("scheduler: started")

	<-ctx.Done()
	logger.Info().Msg("scheduler: shutting down")
	<-c.Stop().Done()
}
