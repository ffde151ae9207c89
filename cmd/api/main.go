package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"neurochat/internal/config"
	apihttp "neurochat/internal/http"
	"neurochat/internal/llm"
	"neurochat/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("invalid TZ_NAME, using local time", zap.String("tz", cfg.TimezoneName), zap.Error(err))
		loc = time.Local
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not configured, every turn will return the error analysis")
	}

	llmClient := llm.NewGeminiClient(cfg.LLMBaseURL, cfg.GeminiAPIKey, cfg.LLMModel, logger)
	analysisSvc := service.NewAnalysisService(
		llmClient,
		service.AnalysisConfig{
			Temperature:     cfg.LLMTemperature,
			MaxOutputTokens: cfg.LLMMaxOutputTokens,
			ReasoningBudget: cfg.LLMThinkingBudget,
			HistoryWindow:   cfg.HistoryWindow,
		},
		service.NewPromptBuilder(loc, cfg.HistoryWindow),
		logger,
	)
	conversation := service.NewConversation(analysisSvc, logger)

	var submitLimiter service.SubmitRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, submit rate limit disabled", zap.Error(err))
		} else {
			submitLimiter = service.NewRedisSubmitRateLimiter(redisClient, cfg.SubmitRateWindow, cfg.SubmitRateMax)
		}
		cancel()
	}

	chatHandler := apihttp.NewChatHandler(logger, conversation, submitLimiter)
	router := apihttp.NewRouter(logger, chatHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("model", cfg.LLMModel))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
