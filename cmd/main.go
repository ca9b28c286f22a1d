package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"

	"petstore-assistant/internal/app"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg := app.Config{
		StateBackend:        envOr("STATE_BACKEND", app.BackendDynamoDB),
		StateTable:          os.Getenv("STATE_TABLE"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envInt("REDIS_DB", 0),
		ParamPrefix:         mustEnv("PARAM_PREFIX"),
		PetStoreURL:         mustEnv("PETSTORE_URL"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		AzureOpenAIEndpoint: os.Getenv("AZURE_OPENAI_ENDPOINT"),
	}

	// ---- AWS SDK config ----
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	bot, err := app.New(ctx, cfg, awsCfg)
	if err != nil {
		slog.Error("failed to wire bot", "err", err)
		os.Exit(1)
	}

	lambda.Start(bot.Handler.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
