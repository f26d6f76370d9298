package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/cache"
	"github.com/iliyamo/elearning-backend/internal/config"
	"github.com/iliyamo/elearning-backend/internal/database"
	"github.com/iliyamo/elearning-backend/internal/handler"
	"github.com/iliyamo/elearning-backend/internal/mail"
	"github.com/iliyamo/elearning-backend/internal/middleware"
	"github.com/iliyamo/elearning-backend/internal/queue"
	"github.com/iliyamo/elearning-backend/internal/repository"
	"github.com/iliyamo/elearning-backend/internal/router"
	"github.com/iliyamo/elearning-backend/internal/service"
	"github.com/iliyamo/elearning-backend/internal/storage"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment may already be set
	cfg := config.Load()

	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ----- stores -----
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("mysql", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	mongoClient, mdb, err := database.OpenMongo(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("mongo", zap.Error(err))
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, store := openCache(cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	assets, err := storage.NewMinioAssets(cfg.MinIO, log)
	if err != nil {
		log.Fatal("minio", zap.Error(err))
	}
	if err := assets.EnsureBucket(ctx); err != nil {
		log.Warn("minio bucket not ready; thumbnail uploads will fail", zap.Error(err))
	}

	// ----- repositories & services -----
	users := repository.NewUserRepo(db)
	orders := repository.NewOrderRepo(db, users, repository.NewNotificationRepo(db))
	courses := repository.NewCourseRepo(ctx, mdb)

	amqpURL := config.AMQPURL()
	publisher := queue.NewPublisher(amqpURL, log)
	cacheCfg := config.LoadCacheConfig()

	tokens := service.NewTokenService(service.TokenConfig{
		ActivationSecret: cfg.ActivationSecret,
		AccessSecret:     cfg.AccessSecret,
		RefreshSecret:    cfg.RefreshSecret,
		AccessTTL:        time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL:       time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
	}, store)
	userSvc := service.NewUserService(users, tokens, publisher, cfg.BcryptCost, log)
	courseSvc := service.NewCourseService(courses, users, assets, store, publisher, cacheCfg.CatalogEnabled, log)
	orderSvc := service.NewOrderService(orders, users, courses, courseSvc, tokens, publisher, log)

	// Mail delivery runs out of band; the HTTP path only enqueues.
	consumer := queue.NewConsumer(amqpURL, mail.NewMailer(mail.NewSMTPSender(cfg.SMTP), log), log)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("mail consumer stopped", zap.Error(err))
		}
	}()

	// ----- http -----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("50M"))
	e.Use(middleware.NewMetrics("elearning", reg).Middleware())
	e.Use(middleware.RequestLogger(log))

	gate := middleware.SessionAuth(tokens)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)

	router.RegisterRoutes(e, reg)
	api := e.Group(router.APIPrefix)
	router.RegisterAuth(api, handler.NewAuthHandler(userSvc, tokens, cfg.Production()), gate, limiter)
	router.RegisterCourses(api, handler.NewCourseHandler(courseSvc), gate)
	router.RegisterOrders(api, handler.NewOrderHandler(orderSvc), gate)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if cfg.Production() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return log
}

// openCache connects to Redis.  Outside production an unreachable Redis
// falls back to an in-process cache so the API can run on a laptop; the
// rate limiter is then disabled because it needs Redis scripts.
func openCache(cfg config.Config, log *zap.Logger) (*redis.Client, cache.Cache) {
	prefix := config.LoadCacheConfig().Prefix
	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err == nil {
		return rdb, cache.NewRedis(rdb, prefix)
	}
	if cfg.Production() {
		log.Fatal("redis", zap.Error(err))
	}
	log.Warn("redis unavailable, using in-memory cache", zap.Error(err))
	return nil, cache.NewMemory()
}
