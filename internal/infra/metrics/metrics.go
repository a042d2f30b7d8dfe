package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PostsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_published_total",
		Help: "Posts published to the platform",
	}, []string{"type"})

	PostFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "post_failures_total",
		Help: "Publish attempts that ended in a failure outcome",
	}, []string{"terminal"})

	PostSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "post_skips_total",
		Help: "Publish attempts skipped (lock busy or already terminal)",
	})

	DailyCapHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daily_cap_hits_total",
		Help: "Runs that found the daily posting cap spent",
	})

	ImageResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "image_resolve_total",
		Help: "Image resolution outcomes by source",
	}, []string{"source"})

	PublishRunSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "publish_run_seconds",
		Help:    "Duration of one publish run",
		Buckets: prometheus.DefBuckets,
	}, []string{"profile"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Duration of outbound network requests",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75, 80, 85, 90, 95, 100, 105, 110, 115, 120, 125, 130, 135, 140, 145, 150, 155, 160, 165, 170, 175, 180, 185, 190, 195, 200, 250, 300, 350, 400, 450, 500, 550, 600},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Count of outbound network requests",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Duration of LLM completions",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Tokens consumed by LLM completions",
	}, []string{"model", "type"})
)

// MustRegister registers all metrics.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsPublishedTotal,
		PostFailuresTotal,
		PostSkipsTotal,
		DailyCapHitsTotal,
		ImageResolveTotal,
		PublishRunSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer runs an HTTP server with the /metrics endpoint.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest records duration and status of an outbound request.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration records duration and token usage of an LLM call.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObservePublished increments the published counter for a post type.
func ObservePublished(postType string) {
	PostsPublishedTotal.WithLabelValues(postType).Inc()
}

// ObserveFailure increments the failure counter.
func ObserveFailure(terminal bool) {
	label := "retryable"
	if terminal {
		label = "terminal"
	}
	PostFailuresTotal.WithLabelValues(label).Inc()
}

// ObserveImageSource increments the image resolution counter.
func ObserveImageSource(source string) {
	ImageResolveTotal.WithLabelValues(source).Inc()
}
