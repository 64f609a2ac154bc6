package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coin-digest/internal/app"
	"coin-digest/internal/bot"
	"coin-digest/internal/config"
	"coin-digest/internal/handler"
	"coin-digest/internal/job"
	"coin-digest/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "coin-digest/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	openStoresFunc         = app.OpenStores
	newSinkFunc            = app.NewSink
	newDigestServiceFunc   = app.NewDigestService
	newDigestJobFunc       = job.NewDigestJob
	startJobFunc           = func(j *job.DigestJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Coin Digest API
// @version         1.0
// @description     Crypto market digest: preview, send and inspect Telegram deliveries.

// @host      localhost:8080
// @BasePath  /
func main() {
	if err := loadEnvFunc(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	stores := openStoresFunc(ctx, cfg, tracer)
	defer stores.Close()

	digestService, err := newDigestServiceFunc(cfg, tracer, stores, newSinkFunc(cfg), nil)
	if err != nil {
		log.Fatalf("failed to build digest service: %v", err)
	}

	if cfg.DigestIntervalSec > 0 {
		digestJob := newDigestJobFunc(tracer, digestService, cfg.DigestIntervalSec)
		startJobFunc(digestJob, ctx)
	} else {
		log.Println("DIGEST_INTERVAL_SECS not set, scheduled digests disabled")
	}

	startTelegramBotFunc(cfg.TelegramBotToken, cfg.TelegramParseMode, digestService)

	if msg := apiKeyWarning(cfg); msg != "" {
		log.Println(msg)
	}

	h := newHandlerFunc(tracer, digestService)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("coin-digest"))

	h.RegisterRoutes(r, cfg.HTTPAPIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// apiKeyWarning reports an unauthenticated send endpoint.
func apiKeyWarning(cfg *config.Config) string {
	if cfg.HTTPAPIKey != "" {
		return ""
	}
	return "Warning: HTTP_API_KEY not set, POST /api/digest/send is open to anyone who can reach the server"
}
