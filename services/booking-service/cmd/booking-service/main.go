package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/meetslot/libs/auth"
	"github.com/md-rashed-zaman/meetslot/libs/config"
	"github.com/md-rashed-zaman/meetslot/libs/db"
	"github.com/md-rashed-zaman/meetslot/libs/httpx"
	"github.com/md-rashed-zaman/meetslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/meetslot/libs/otel"
	"github.com/md-rashed-zaman/meetslot/libs/runtime"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/blocks"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/storage/sqlstore"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.ShutdownContext(logger)
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(service)
	if err != nil {
		panic(err)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	seed, err := seedConfig()
	if err != nil {
		panic(err)
	}

	store, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer closeStore()

	readyChecks := []runtime.ReadyCheck{{Name: "store", Check: store.Ping}}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	cacheTTL, err := config.Duration("AVAILABILITY_CACHE_TTL_SECONDS", time.Second, 60)
	if err != nil {
		panic(err)
	}
	var monthCache cache.MonthCache = cache.Noop{}
	switch {
	case cacheTTL == 0:
	case rdb != nil:
		monthCache = cache.NewRedis(rdb, cacheTTL, service, logger)
	default:
		monthCache = cache.NewMemory(cacheTTL)
	}

	bookings := booking.NewService(store, logger, booking.Options{
		Seed:        seed,
		MeetingLink: config.String("MEETING_LINK", ""),
		Cache:       monthCache,
	})
	registry := blocks.NewRegistry(store, monthCache, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(store, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	verifier, err := auth.NewAdminVerifier(config.String("ADMIN_SECRET", ""), config.String("ADMIN_SECRET_BCRYPT", ""))
	if err != nil {
		panic(err)
	}
	if !verifier.Enabled() {
		logger.Warn("no admin secret configured; admin routes will reject every request")
	}

	bookLimit, err := bookRateLimit(rdb, service, logger)
	if err != nil {
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(bookings, registry, logger).Register(mux, handlers.RouteOptions{
		Admin:     auth.RequireAdmin(verifier, handlers.Unauthorized),
		BookLimit: bookLimit,
	})

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 64<<10)
	if err != nil {
		panic(err)
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT_SECONDS", time.Second, 15)
	if err != nil {
		panic(err)
	}
	cors := httpx.NewCORSPolicy(config.List("CORS_ALLOWED_ORIGINS", ""), auth.AdminKeyHeader)
	if cors.AllowCredentials, err = config.Bool("CORS_ALLOW_CREDENTIALS", false); err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(cors),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// openStore selects the backend from STORE_DRIVER.
func openStore(ctx context.Context, logger *slog.Logger) (storage.Store, func(), error) {
	switch driver := config.String("STORE_DRIVER", "postgres"); driver {
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, nil, err
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			return nil, nil, err
		}
		pool, err := db.Open(ctx, dbURL, int32(maxConns))
		if err != nil {
			return nil, nil, err
		}
		pg := storage.NewPgStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("store ready", "driver", driver)
		return pg, pool.Close, nil
	case "sqlite":
		s, err := sqlstore.Open(config.String("SQLITE_PATH", "meetslot.db"))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store ready", "driver", driver)
		return s, func() { _ = s.Close() }, nil
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("STORE_DRIVER must be postgres, sqlite or memory (got %q)", driver)
	}
}

// seedConfig builds the schedule served until an admin saves one.
func seedConfig() (schedule.Config, error) {
	cfg := schedule.Default()
	if days := config.List("SCHEDULE_WORKING_DAYS", ""); len(days) > 0 {
		cfg.WorkingDays = cfg.WorkingDays[:0:0]
		for _, raw := range days {
			d, err := strconv.Atoi(raw)
			if err != nil {
				return schedule.Config{}, fmt.Errorf("SCHEDULE_WORKING_DAYS must list weekday numbers (got %q)", raw)
			}
			cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"SCHEDULE_START_HOUR_UTC", &cfg.StartHourUTC},
		{"SCHEDULE_END_HOUR_UTC", &cfg.EndHourUTC},
		{"SCHEDULE_SLOT_MINUTES", &cfg.SlotMinutes},
		{"SCHEDULE_ADVANCE_NOTICE_HOURS", &cfg.AdvanceNoticeHours},
		{"SCHEDULE_MAX_DAYS_AHEAD", &cfg.MaxDaysAhead},
	}
	for _, f := range ints {
		v, err := config.Int(f.key, *f.dst)
		if err != nil {
			return schedule.Config{}, err
		}
		*f.dst = v
	}
	cfg.AdminTimezone = config.String("SCHEDULE_ADMIN_TIMEZONE", cfg.AdminTimezone)
	if err := cfg.Validate(); err != nil {
		return schedule.Config{}, fmt.Errorf("schedule seed: %w", err)
	}
	return cfg, nil
}

// bookRateLimit throttles POST /book per client, shared through redis when available.
func bookRateLimit(rdb *redis.Client, service string, logger *slog.Logger) (httpx.Middleware, error) {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	if perMinute <= 0 {
		return nil, nil
	}
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, service+":book").Middleware(logger, true), nil
	}
	return httpx.NewRateLimiter(perMinute, time.Minute).Middleware(), nil
}
