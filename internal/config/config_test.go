package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(keys ...string) func() {
	saved := make(map[string]string, len(keys))
	had := make(map[string]bool, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			saved[k] = v
			had[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if had[k] {
				os.Setenv(k, saved[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

var allKeys = []string{
	"QUEUE_URL", "CONFIG_URL", "WORKER_COUNT", "BATCH_SIZE", "BLOCK_TIME_MS",
	"HTTP_TIMEOUT_SECS", "MAX_RETRIES", "RETRY_BASE_DELAY_SECS",
	"CIRCUIT_BREAKER_THRESHOLD", "CIRCUIT_BREAKER_TIMEOUT_SECS",
	"DEDUP_TTL_SECONDS", "STREAM_MAX_LEN", "CONSUMER_NAME",
	ChainIDsEnv, "1_WS_URL", "137_WS_URL",
}

func TestLoad_Defaults(t *testing.T) {
	defer clearEnv(allKeys...)()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, time.Duration(defaultBlockTimeMS)*time.Millisecond, cfg.BlockTime)
	assert.Equal(t, time.Duration(defaultCircuitBreakerThreshold), time.Duration(cfg.CircuitBreakerThreshold))
	assert.Equal(t, defaultDedupTTLSeconds*time.Second, cfg.DedupTTL)
	assert.NotEmpty(t, cfg.ConsumerName)
	assert.Empty(t, cfg.ChainWSURLs)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	defer clearEnv(allKeys...)()

	os.Setenv("WORKER_COUNT", "25")
	os.Setenv("MAX_RETRIES", "3")
	os.Setenv("CONSUMER_NAME", "worker-1")
	os.Setenv(ChainIDsEnv, "1,137")
	os.Setenv("1_WS_URL", "wss://mainnet.example/ws")
	os.Setenv("137_WS_URL", "wss://polygon.example/ws")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.WorkerCount)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "worker-1", cfg.ConsumerName)
	assert.Equal(t, "wss://mainnet.example/ws", cfg.ChainWSURLs[1])
	assert.Equal(t, "wss://polygon.example/ws", cfg.ChainWSURLs[137])
}

func TestLoad_InvalidIntegerIsValidationError(t *testing.T) {
	defer clearEnv(allKeys...)()
	os.Setenv("WORKER_COUNT", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MissingChainWSURLIsError(t *testing.T) {
	defer clearEnv(allKeys...)()
	os.Setenv(ChainIDsEnv, "1")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidChainIDIsError(t *testing.T) {
	defer clearEnv(allKeys...)()
	os.Setenv(ChainIDsEnv, "not-a-chain-id")

	_, err := Load()
	assert.Error(t, err)
}
