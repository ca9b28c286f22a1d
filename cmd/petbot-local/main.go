// Command petbot-local serves the bot's messaging endpoint over plain HTTP
// for the Bot Framework Emulator.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"petstore-assistant/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("petbot-local failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr string
		cfg  app.Config
	)

	cmd := &cobra.Command{
		Use:           "petbot-local",
		Short:         "Run the pet store assistant on a local HTTP endpoint",
		Long:          "Serves POST /api/messages with the same wiring as the Lambda function. Settings default to the Lambda environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", getEnv("LISTEN_ADDR", ":3978"), "HTTP listen address")
	f.StringVar(&cfg.StateBackend, "state-backend", getEnv("STATE_BACKEND", app.BackendRedis), "Conversation state backend (dynamodb or redis)")
	f.StringVar(&cfg.StateTable, "state-table", os.Getenv("STATE_TABLE"), "DynamoDB table for conversation state")
	f.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	f.StringVar(&cfg.RedisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	f.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	f.StringVar(&cfg.ParamPrefix, "param-prefix", os.Getenv("PARAM_PREFIX"), "SSM parameter prefix")
	f.StringVar(&cfg.PetStoreURL, "petstore-url", getEnv("PETSTORE_URL", "http://localhost:8080"), "Pet store base URL")
	f.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible API base URL")
	f.StringVar(&cfg.AzureOpenAIEndpoint, "azure-openai-endpoint", os.Getenv("AZURE_OPENAI_ENDPOINT"), "Azure OpenAI resource endpoint")

	return cmd
}

func serve(ctx context.Context, addr string, cfg app.Config) error {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	bot, err := app.New(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("failed to close state backend", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/api/messages", bot.Handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
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
