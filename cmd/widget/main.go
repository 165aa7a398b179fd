package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/config"
	httphandler "github.com/kjstillabower/weather-lookup-widget/internal/http"
	"github.com/kjstillabower/weather-lookup-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-widget/internal/lookup"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
	"github.com/kjstillabower/weather-lookup-widget/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.MissingAPIKey() {
		logger.Warn("no weather API key configured; set WEATHER_API_KEY or config/secrets.yaml, lookups will fail with the provider's error")
	}

	weatherClient, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("component", "weather_api"),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
			},
		})
		weatherClient.SetCircuitBreaker(breaker)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(observability.CircuitBreakerStateValue(breaker.State().String()))
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	providerOutcomes := traffic.NewTracker(cfg.HealthDegradedWindow)
	store := session.NewStore(cfg.SessionTTL, func() *lookup.Controller {
		return lookup.NewController(weatherClient, logger, lookup.WithOutcomeRecorder(providerOutcomes))
	})
	sweeper, err := session.StartSweeper(store, cfg.SessionSweepSchedule, logger)
	if err != nil {
		logger.Fatal("session sweeper", zap.Error(err))
	}

	handler := httphandler.NewHandler(store, &httphandler.HealthConfig{
		Breaker:       breaker,
		APIKeyMissing: cfg.MissingAPIKey(),
		StartTime:     time.Now(),

		ProviderOutcomes: providerOutcomes,
		DegradedWindow:   cfg.HealthDegradedWindow,
		DegradedErrorPct: cfg.HealthDegradedErrorPct,
	}, logger)
	router := httphandler.NewRouter(handler, logger)

	// WriteTimeout leaves room for a lookup that runs the full provider timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.WeatherAPITimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("weather_api_url", cfg.WeatherAPIURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	err = lifecycle.Shutdown(context.Background(), logger,
		lifecycle.Step{Name: "http server", Timeout: cfg.ShutdownTimeout, Run: srv.Shutdown},
		lifecycle.Step{Name: "in-flight lookups", Timeout: cfg.ShutdownInFlightTimeout, Run: func(ctx context.Context) error {
			logger.Info("waiting for in-flight lookups", zap.Int64("count", httphandler.InFlightCount()))
			return httphandler.WaitForInFlight(ctx, cfg.ShutdownInFlightCheckInterval)
		}},
		lifecycle.Step{Name: "session sweeper", Timeout: cfg.ShutdownTimeout, Run: func(ctx context.Context) error {
			select {
			case <-sweeper.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		lifecycle.Step{Name: "telemetry flush", Run: func(ctx context.Context) error {
			return observability.FlushTelemetry(ctx, logger)
		}},
	)
	if err != nil {
		logger.Error("shutdown incomplete", zap.Error(err), zap.Int64("in_flight_remaining", httphandler.InFlightCount()))
	}
	logger.Info("shutdown complete")
}
