package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/recorder"
)

func setupRedisFeed(t *testing.T) *RedisFeed {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cfg := config.Default().Redis
	cfg.Addr = fmt.Sprintf("%s:%s", host, port.Port())
	cfg.Key = "tmdbscan:test"

	f, err := NewRedisFeed(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestNewRedisFeed_Unreachable(t *testing.T) {
	cfg := config.Default().Redis
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = 0
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewRedisFeed(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestRedisFeed_PublishAndRecent(t *testing.T) {
	f := setupRedisFeed(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.Publish(ctx, &recorder.Discovery{
			RunID:        "run-1",
			TitleID:      fmt.Sprintf("SCUS9739%d", i),
			Category:     "physical-legacy",
			DiscoveredAt: time.Now().UTC(),
		}))
	}

	recent, err := f.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "SCUS97391", recent[0].TitleID)
	assert.Equal(t, "SCUS97392", recent[1].TitleID)
}

func TestRedisFeed_Subscribe(t *testing.T) {
	f := setupRedisFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := f.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Publish(ctx, &recorder.Discovery{TitleID: "CUSA00001", Category: "disc4"}))

	select {
	case d := <-events:
		assert.Equal(t, "CUSA00001", d.TitleID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestRedisFeed_SubscribeLogsMalformedMessages(t *testing.T) {
	f := setupRedisFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	core, logs := observer.New(zapcore.DebugLevel)
	observed := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	cfg := config.Default().Redis
	cfg.Addr = f.client.Options().Addr
	cfg.Key = f.Key()
	follower, err := NewRedisFeed(logger.WithLogger(ctx, observed), cfg)
	require.NoError(t, err)
	defer follower.Close()

	events, err := follower.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, f.client.Publish(ctx, f.Key(), "not json").Err())
	require.NoError(t, f.Publish(ctx, &recorder.Discovery{TitleID: "MRTC00001", Category: "physical-disc3-special"}))

	select {
	case d := <-events:
		assert.Equal(t, "MRTC00001", d.TitleID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	assert.Equal(t, 1, logs.FilterMessage("Connected to discovery feed").Len())
	warned := logs.FilterMessage("Skipping malformed feed message").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "feed", warned[0].ContextMap()["component"])
}
