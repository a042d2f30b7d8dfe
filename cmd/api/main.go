package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

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
	httpinfra "ev-newswire/internal/infra/http"
	applog "ev-newswire/internal/infra/log"
	"ev-newswire/internal/infra/metrics"
	"ev-newswire/internal/infra/openai"
	"ev-newswire/internal/usecase/digest"
	"ev-newswire/internal/usecase/ingest"
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
		logger.Fatal().Err(err).Msg("api: database connection failed")
	}
	defer pool.Close()

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("api: REDIS_ADDR is required")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	appCache := cache.NewRedis(redisClient)

	store := repo.NewPostgres(pool)

	var alertPublisher domain.AlertPublisher = alerts.NewNoop()
	if cfg.AMQP.URL != "" {
		rabbit, err := alerts.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: alert publisher setup failed")
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
			logger.Fatal().Err(err).Msg("api: blob store setup failed")
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
	ingestService := ingest.NewService(store, cfg.Publish.AutoApproveScore, logger)

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	r := server.Router

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(hooks chi.Router) {
		hooks.Use(httpinfra.WebhookAuthMiddleware(cfg.WebhookSecret))

		hooks.Post("/api/webhook", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req ingest.Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			result, err := ingestService.Ingest(req)
			if err != nil {
				logger.Error().Err(err).
					Str("batch_id", req.BatchID).
					Str("request_id", httpinfra.RequestID(r)).
					Msg("api: ingest failed")
				writeError(w, http.StatusInternalServerError, "failed to store batch")
				return
			}
			writeJSON(w, result)
		})
	})

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.BearerAuthMiddleware(cfg.CronSecret))

		protected.Post("/api/cron/publish", func(w http.ResponseWriter, r *http.Request) {
			summary, err := runner.Run(r.Context(), domain.NewsProfile(cfg.Publish.AutoApproveScore))
			if err != nil {
				logger.Error().Err(err).Str("run_id", summary.RunID).Msg("api: publish run failed")
				writeError(w, http.StatusInternalServerError, "publish run failed")
				return
			}
			writeJSON(w, summary)
		})

		protected.Post("/api/cron/digest", func(w http.ResponseWriter, r *http.Request) {
			summary, err := digestService.Run(r.Context())
			if err != nil {
				logger.Error().Err(err).Str("run_id", summary.RunID).Msg("api: digest run failed")
				writeError(w, http.StatusInternalServerError, "digest run failed")
				return
			}
			writeJSON(w, summary)
		})

		protected.Post("/api/publications/{contentID}/retry", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "contentID"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid content id")
				return
			}
			defer r.Body.Close()
			var req retryRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			outcome := executor.Publish(r.Context(), id, publish.Options{
				PreStates:        []domain.PublicationStatus{domain.StatusDraft, domain.StatusApproved, domain.StatusFailed},
				OverrideImageURL: req.ImageURL,
				ApprovedBy:       req.ApprovedBy,
			})
			writeJSON(w, outcome)
		})

		protected.Get("/api/publications/{contentID}", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "contentID"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid content id")
				return
			}
			record, err := store.GetRecord(id)
			if errors.Is(err, domain.ErrRecordNotFound) {
				writeError(w, http.StatusNotFound, "publication record not found")
				return
			}
			if err != nil {
				logger.Error().Err(err).Str("content_id", id.String()).Msg("api: record lookup failed")
				writeError(w, http.StatusInternalServerError, "failed to load record")
				return
			}
			writeJSON(w, recordResponse(record))
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: server stopped")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type retryRequest struct {
	ImageURL   string `json:"imageUrl"`
	ApprovedBy string `json:"approvedBy"`
}

type publicationResponse struct {
	ContentID       uuid.UUID  `json:"contentId"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastAttemptAt   *time.Time `json:"lastAttemptAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	ExternalPostID  string     `json:"externalPostId,omitempty"`
	ExternalPostURL string     `json:"externalPostUrl,omitempty"`
	ImageSource     string     `json:"imageSource"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func recordResponse(record domain.PublicationRecord) publicationResponse {
	return publicationResponse{
		ContentID:       record.ContentID,
		Status:          string(record.Status),
		Attempts:        record.Attempts,
		LastAttemptAt:   record.LastAttemptAt,
		LastError:       record.LastError,
		ExternalPostID:  record.ExternalPostID,
		ExternalPostURL: record.ExternalPostURL,
		ImageSource:     string(record.ImageSource),
		ApprovedBy:      record.ApprovedBy,
		UpdatedAt:       record.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
