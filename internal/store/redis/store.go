// Package redis caches slow-to-fetch broker data and publishes run
// status for external dashboards. The bot is fully functional without
// Redis; callers treat a nil *Store as "cache disabled".
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/Bmittal0901/SensexAlgo/internal/engine"
	"github.com/Bmittal0901/SensexAlgo/internal/markethours"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

const (
	instrumentsKeyPrefix = "algobot:instruments:"
	statusKey            = "algobot:status"
	statusChannel        = "algobot:status:events"
)

// Config configures the Redis store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store wraps a Redis client.
type Store struct {
	client *goredis.Client
}

// New connects and pings Redis.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// CacheInstruments stores the day's contract master dump for an
// exchange. The key expires at the next IST midnight: contract masters
// are refreshed daily by the broker.
func (s *Store) CacheInstruments(ctx context.Context, exchange string, instruments []model.Instrument) error {
	data, err := json.Marshal(instruments)
	if err != nil {
		return err
	}

	now := time.Now().In(markethours.IST)
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, markethours.IST)

	key := instrumentsKeyPrefix + exchange
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return s.client.ExpireAt(ctx, key, midnight).Err()
}

// CachedInstruments returns the cached dump for an exchange, or
// ok=false on miss.
func (s *Store) CachedInstruments(ctx context.Context, exchange string) ([]model.Instrument, bool) {
	data, err := s.client.Get(ctx, instrumentsKeyPrefix+exchange).Bytes()
	if err != nil {
		return nil, false
	}
	var out []model.Instrument
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("[redis] corrupt instruments cache for %s: %v", exchange, err)
		return nil, false
	}
	return out, true
}

// PublishStatus writes the latest run status snapshot and notifies
// subscribers. Best-effort: the loop ignores the returned error.
func (s *Store) PublishStatus(ctx context.Context, st engine.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, statusKey, data, 24*time.Hour).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, statusChannel, data).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
