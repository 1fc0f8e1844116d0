// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"autoapply-backend/internal/api"
	"autoapply-backend/internal/applications"
	"autoapply-backend/internal/common/auth"
	"autoapply-backend/internal/common/aws"
	"autoapply-backend/internal/common/camunda"
	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/database"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/common/observability"
	"autoapply-backend/internal/common/validation"
	"autoapply-backend/internal/jobs"
	"autoapply-backend/internal/notify"
	"autoapply-backend/internal/profiles"
	"autoapply-backend/internal/ratelimit"
	"autoapply-backend/internal/scheduler"
	"autoapply-backend/internal/scraping"
	"autoapply-backend/internal/stats"
	"autoapply-backend/pkg/registry"

	aas "autoapply-backend/internal/workers/application/advance-application-status"
	aob "autoapply-backend/internal/workers/application/apply-on-behalf"
	san "autoapply-backend/internal/workers/application/send-application-notification"
	rms "autoapply-backend/internal/workers/jobs/refresh-match-scores"
	tss "autoapply-backend/internal/workers/scraping/trigger-scraping-session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.NewWithOptions(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputPaths(cfg.Logging.Output),
		Service:     cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...", zap.String("version", cfg.App.Version))

	var obsOpts []observability.Option
	if cfg.Tracing.Enabled {
		obsOpts = append(obsOpts, observability.WithTracing(cfg.Tracing.SampleRatio))
	}
	obs := observability.New(cfg.App.Name, obsOpts...)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pg.DB); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Schema migrated")
	}

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (optional) ---
	var (
		searcher jobs.Searcher = jobs.NewPostgresSearcher(database.NewDBRSession(pg.DB))
		indexer  jobs.Indexer
		jobIndex applications.JobIndex
	)
	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := es.EnsureIndex(ctx, cfg.Database.Elasticsearch.JobsIndex, jobs.JobsIndexMapping); err != nil {
			zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
		}
		index := jobs.NewElasticIndex(es.Client, cfg.Database.Elasticsearch.JobsIndex)
		indexer = index
		jobIndex = index
		if cfg.Search.Backend == "elasticsearch" {
			searcher = index
		}
		zapLog.Info("Elasticsearch connected successfully", zap.String("searchBackend", cfg.Search.Backend))
	}

	// --- Zeebe (optional) ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: cfg.Camunda.UsePlaintext,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- Services ---
	profileStore := profiles.NewStore(pg.DB, rdb.Client, time.Duration(cfg.Profiles.CacheTTL)*time.Second, log)
	jobService := jobs.NewService(pg.DB, profileStore, searcher, indexer, cfg.Search, log)

	var emailSender notify.EmailSender
	var smsSender notify.SMSSender
	if cfg.Notifications.Email.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Email.FromEmail)
		if err != nil {
			zapLog.Fatal("failed to create SES client", zap.Error(err))
		}
		emailSender = ses
	}
	if cfg.Notifications.SMS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.SMS.SenderID)
		if err != nil {
			zapLog.Fatal("failed to create SNS client", zap.Error(err))
		}
		smsSender = sns
	}
	dispatcher := notify.NewDispatcher(cfg.Notifications, rdb.Client, emailSender, smsSender, profileStore, log)

	var notifier applications.Notifier
	if cfg.Notifications.Enabled {
		notifier = dispatcher
	}
	applicationService := applications.NewService(pg.DB, notifier, obs, log)
	if cfg.Notifications.Timeout > 0 {
		applicationService.SetNotifyTimeout(config.GetDuration(cfg.Notifications.Timeout))
	}
	if jobIndex != nil {
		applicationService.SetJobIndex(jobIndex)
	}

	scraper, err := scraping.NewHTTPScraper(cfg.Scraper)
	if err != nil {
		zapLog.Fatal("failed to create scraper client", zap.Error(err))
	}
	scrapingService := scraping.NewService(pg.DB, profileStore, scraper, jobService, cfg.Scraper, cfg.Packages, obs, log)
	if zeebe != nil {
		scrapingService.SetPublisher(scraping.NewZeebePublisher(zeebe))
	}

	statsService := stats.NewService(pg.DB)

	var limiter api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(rdb.Client, cfg.RateLimit, log)
	}

	var resolver api.ActorResolver
	if cfg.Auth.Keycloak.Enabled {
		kc := cfg.Auth.Keycloak
		resolver = auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret, kc.AdminRole)
	} else if !cfg.HTTP.TrustedHeaders {
		zapLog.Fatal("either auth.keycloak.enabled or http.trusted_headers must be set")
	}

	// --- Zeebe Workers ---
	var jobWorkers []worker.JobWorker
	if zeebe != nil {
		validator := validation.NewValidator()
		if reg, err := registry.LoadRegistry(cfg.Registry.Path); err != nil {
			zapLog.Warn("activity registry not loaded, worker input is not schema-checked", zap.Error(err))
		} else if err := reg.RegisterSchemas(validator); err != nil {
			zapLog.Fatal("activity registry schemas invalid", zap.Error(err))
		}

		inst := &camunda.Instrumentation{
			Obs:       obs,
			Validator: validator,
			Errors:    errors.NewErrorHandler(log),
			Log:       log,
		}
		open := func(taskType string, handler worker.JobHandler) {
			wcfg := config.GetWorkerConfig(cfg, taskType)
			if jw := camunda.Open(zeebe.GetClient(), taskType, wcfg, inst.Wrap(taskType, handler), log); jw != nil {
				jobWorkers = append(jobWorkers, jw)
			}
		}

		tssCfg := tss.LoadConfig()
		withTimeout(&tssCfg.Timeout, cfg, tss.TaskType)
		open(tss.TaskType, tss.NewHandler(tssCfg, scrapingService, log).Handle)

		aobCfg := aob.LoadConfig()
		withTimeout(&aobCfg.Timeout, cfg, aob.TaskType)
		open(aob.TaskType, aob.NewHandler(aobCfg, applicationService, log).Handle)

		aasCfg := aas.LoadConfig()
		withTimeout(&aasCfg.Timeout, cfg, aas.TaskType)
		open(aas.TaskType, aas.NewHandler(aasCfg, applicationService, log).Handle)

		sanCfg := san.LoadConfig()
		withTimeout(&sanCfg.Timeout, cfg, san.TaskType)
		open(san.TaskType, san.NewHandler(sanCfg, dispatcher, log).Handle)

		rmsCfg := rms.LoadConfig()
		withTimeout(&rmsCfg.Timeout, cfg, rms.TaskType)
		open(rms.TaskType, rms.NewHandler(rmsCfg, jobService, log).Handle)

		zapLog.Info("Zeebe workers registered", zap.Int("count", len(jobWorkers)))
	}

	// --- Scheduler ---
	sched := scheduler.New(cfg.Scheduler, jobService, scrapingService,
		time.Duration(cfg.Scraper.StaleSessionAfter)*time.Minute, log)
	if err := sched.Start(); err != nil {
		zapLog.Fatal("scheduler failed to start", zap.Error(err))
	}

	// --- HTTP API, Health & Metrics ---
	trustedProxies, err := api.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		zapLog.Fatal("invalid http.trusted_proxies", zap.Error(err))
	}
	server := api.NewServer(api.Deps{
		Applications:   applicationService,
		Jobs:           jobService,
		Scraping:       scrapingService,
		Stats:          statsService,
		Limiter:        limiter,
		Resolver:       resolver,
		TrustedProxies: trustedProxies,
	}, log)
	server.Mount("GET /health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	}))
	server.Mount("GET /ready", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := pg.Ping(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "postgres unavailable")
			return
		}
		if err := rdb.Ping(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	}))
	server.Mount("GET /metrics", promhttp.Handler())

	httpServer := api.NewHTTPServer(cfg.HTTP.Address, server,
		config.GetDuration(cfg.HTTP.ReadTimeout), config.GetDuration(cfg.HTTP.WriteTimeout))
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownTimeout := config.GetDuration(cfg.HTTP.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	for _, jw := range jobWorkers {
		jw.Close()
	}
	sched.Stop(shutdownCtx)
	if err := scrapingService.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("Scraping sessions interrupted by shutdown", zap.Error(err))
	}
	applicationService.Wait()

	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// withTimeout overrides a worker's default handler timeout with the configured one.
func withTimeout(d *time.Duration, cfg *config.Config, taskType string) {
	if ms := config.GetWorkerConfig(cfg, taskType).Timeout; ms > 0 {
		*d = config.GetDuration(ms)
	}
}

func outputPaths(output string) []string {
	if output == "" || output == "stdout" {
		return nil
	}
	return []string{output}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
