package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EnvTestRedisAddr names the Redis instance integration tests may use.
const EnvTestRedisAddr = "TEST_REDIS_ADDR"

// SetupTestRedis returns a client on a flushed test database, or skips the
// test when no Redis is reachable.
func SetupTestRedis(t testing.TB) *goredis.Client {
	t.Helper()

	addr := os.Getenv(EnvTestRedisAddr)
	if addr == "" {
		t.Skipf("%s not set; skipping Redis test", EnvTestRedisAddr)
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() { client.Close() })
	return client
}
