package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteSign/config"
)

func TestKey(t *testing.T) {
	prev := config.Cfg.RedisPrefix
	t.Cleanup(func() { config.Cfg.RedisPrefix = prev })

	config.Cfg.RedisPrefix = "ss"
	assert.Equal(t, "ss:visit:abc:events", Key("visit", "abc", "events"))
	assert.Equal(t, "ss:visit", Key("visit", ""))

	config.Cfg.RedisPrefix = ""
	assert.Equal(t, "sitesign:x", Key("x"))
}

func TestTracingHookPassesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c.AddHook(newTracingHook("test", 0))
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0).Err())

	v, err := c.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = c.Get(ctx, "missing").Result()
	assert.ErrorIs(t, err, goredis.Nil)

	_, err = c.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Incr(ctx, "n")
		p.Incr(ctx, "n")
		return nil
	})
	require.NoError(t, err)
	got, err := mr.Get("n")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}
