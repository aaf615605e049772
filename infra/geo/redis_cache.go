// Package geo provides distance providers beyond the analytic haversine.
// The Redis cache fronts an expensive distance source (a routing service)
// with a shared TTL cache, so repeated vehicle/pickup pairs across cycles
// hit the network once.
package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/infra/logger"
)

// Config defines the Redis distance cache settings.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// SetDefaults applies production defaults.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 3600
	}
}

// keyPrecision rounds coordinates for cache keys. Five decimals is roughly
// one metre, well below dispatch relevance.
const keyPrecision = 5

// RedisCache is a caching model.DistanceFunc wrapper. Cache failures degrade
// to the base function, never to an error.
type RedisCache struct {
	cli  *redis.Client
	base model.DistanceFunc
	ttl  time.Duration
	log  logger.Logger
}

// NewRedisCache connects to Redis and wraps base.
func NewRedisCache(cfg Config, base model.DistanceFunc) (*RedisCache, error) {
	cfg.SetDefaults()
	if base == nil {
		base = model.HaversineDistance
	}
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("geo: redis ping: %w", err)
	}
	return &RedisCache{
		cli:  cli,
		base: base,
		ttl:  time.Duration(cfg.TTLSeconds) * time.Second,
		log:  logger.New("geo-cache"),
	}, nil
}

// Distance is the cached model.DistanceFunc.
func (c *RedisCache) Distance(a, b model.Coordinate) float64 {
	key := cacheKey(a, b)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if val, err := c.cli.Get(ctx, key).Result(); err == nil {
		if d, perr := strconv.ParseFloat(val, 64); perr == nil {
			return d
		}
	} else if err != redis.Nil {
		c.log.Warnf("cache get %s: %v", key, err)
	}

	d := c.base(a, b)
	if err := c.cli.Set(ctx, key, strconv.FormatFloat(d, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.log.Warnf("cache set %s: %v", key, err)
	}
	return d
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error { return c.cli.Close() }

// cacheKey is symmetric: (a,b) and (b,a) share one entry.
func cacheKey(a, b model.Coordinate) string {
	ka := pointKey(a)
	kb := pointKey(b)
	if kb < ka {
		ka, kb = kb, ka
	}
	return "dist:" + ka + ":" + kb
}

func pointKey(p model.Coordinate) string {
	return strconv.FormatFloat(p.Lat, 'f', keyPrecision, 64) + "," +
		strconv.FormatFloat(p.Lon, 'f', keyPrecision, 64)
}
