//go:build integration

package price

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// postgresDSN returns SYMBOLWS_TEST_POSTGRES_DSN or starts a throwaway server.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("SYMBOLWS_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "symbolws",
				"POSTGRES_PASSWORD": "symbolws",
				"POSTGRES_DB":       "symbolws",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://symbolws:symbolws@%s:%s/symbolws?sslmode=disable", host, port.Port())
}

// redisAddr returns SYMBOLWS_TEST_REDIS_ADDR or starts a throwaway server.
func redisAddr(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("SYMBOLWS_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}
