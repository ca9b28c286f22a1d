package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		StateBackend: BackendDynamoDB,
		StateTable:   "petstore-state",
		ParamPrefix:  "/petstore",
		PetStoreURL:  "http://localhost:8080",
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	cfg := validConfig()
	cfg.StateBackend = ""
	require.NoError(t, cfg.validate())
	require.Equal(t, BackendDynamoDB, cfg.backend())

	cfg = validConfig()
	cfg.StateTable = ""
	require.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.StateBackend = "Redis"
	require.Error(t, cfg.validate())
	cfg.RedisAddr = "localhost:6379"
	require.NoError(t, cfg.validate())

	cfg = validConfig()
	cfg.StateBackend = "memcached"
	require.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.ParamPrefix = " "
	require.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.PetStoreURL = ""
	require.Error(t, cfg.validate())
}

func TestNew_DynamoDBBackend(t *testing.T) {
	a, err := New(context.Background(), validConfig(), aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	require.NotNil(t, a.Handler)
	require.NoError(t, a.Close())
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := validConfig()
	cfg.StateBackend = BackendRedis
	cfg.RedisAddr = mr.Addr()
	cfg.AzureOpenAIEndpoint = "https://example.openai.azure.com"

	a, err := New(context.Background(), cfg, aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	require.NotNil(t, a.Handler)
	require.NoError(t, a.Close())
}

func TestNew_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := validConfig()
	cfg.StateBackend = BackendRedis
	cfg.RedisAddr = addr
	_, err := New(context.Background(), cfg, aws.Config{Region: "us-east-1"})
	require.Error(t, err)
}

func TestNew_InvalidPetStoreURL(t *testing.T) {
	cfg := validConfig()
	cfg.PetStoreURL = "not a url"
	_, err := New(context.Background(), cfg, aws.Config{Region: "us-east-1"})
	require.Error(t, err)
}
