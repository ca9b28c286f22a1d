// Package app wires the bot's collaborators from process configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"petstore-assistant/handler"
	"petstore-assistant/internal/integrations/openai"
	"petstore-assistant/internal/integrations/paramstore"
	"petstore-assistant/internal/integrations/petstore"
	"petstore-assistant/internal/repository"
	"petstore-assistant/internal/repository/redisstate"
	"petstore-assistant/internal/state"
	"petstore-assistant/internal/usecase"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

// Config is everything read from the environment or command line.
type Config struct {
	StateBackend        string
	StateTable          string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	ParamPrefix         string
	PetStoreURL         string
	OpenAIBaseURL       string
	AzureOpenAIEndpoint string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ParamPrefix) == "" {
		return errors.New("app: parameter prefix is required")
	}
	if strings.TrimSpace(c.PetStoreURL) == "" {
		return errors.New("app: pet store url is required")
	}
	switch c.backend() {
	case BackendDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return errors.New("app: state table is required for the dynamodb backend")
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("app: redis address is required for the redis backend")
		}
	default:
		return fmt.Errorf("app: unknown state backend %q", c.StateBackend)
	}
	return nil
}

func (c Config) backend() string {
	b := strings.ToLower(strings.TrimSpace(c.StateBackend))
	if b == "" {
		return BackendDynamoDB
	}
	return b
}

// App is a fully wired bot.
type App struct {
	Handler *handler.Handler
	closers []func() error
}

// Close releases connections held by the state backend.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func New(ctx context.Context, cfg Config, awsCfg aws.Config) (*App, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &App{}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}

	var backend state.Backend
	switch cfg.backend() {
	case BackendRedis:
		rc, err := redisstate.New(ctx, redisstate.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      redisstate.DefaultTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("app: create redis state client: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		backend = rc
	default:
		dc, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, fmt.Errorf("app: create dynamodb state client: %w", err)
		}
		backend = dc
	}

	store, err := state.New(backend)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create state store: %w", err)
	}

	var openaiOpts []openai.Option
	if cfg.OpenAIBaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.AzureOpenAIEndpoint != "" {
		openaiOpts = append(openaiOpts, openai.WithAzureEndpoint(cfg.AzureOpenAIEndpoint))
	}
	openaiClient, err := openai.NewClient(ssmClient, cfg.ParamPrefix, openaiOpts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	storeClient, err := petstore.NewClient(cfg.PetStoreURL)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create pet store client: %w", err)
	}

	assistant, err := usecase.NewAssistantService(ssmClient, openaiClient, storeClient, cfg.ParamPrefix)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create assistant: %w", err)
	}

	router, err := usecase.NewRouter(assistant, assistant, store)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create router: %w", err)
	}

	h, err := handler.NewHandler(router)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create handler: %w", err)
	}
	a.Handler = h

	slog.Info("bot wired", "state_backend", cfg.backend(), "param_prefix", cfg.ParamPrefix)
	return a, nil
}
