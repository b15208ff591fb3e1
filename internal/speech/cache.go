package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a Store that has no entry for a key.
var ErrCacheMiss = errors.New("speech: cache miss")

// Store is the byte store behind CachedGateway.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore keeps cached audio in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is an in-process Store, mostly useful in tests and the CLI.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

type cachedAudio struct {
	Format     string `json:"format"`
	DurationNS int64  `json:"duration_ns"`
	Backend    string `json:"backend"`
	Audio      []byte `json:"audio"`
}

// CachedGateway serves repeated text from a Store instead of re-synthesizing.
// Each hit is written to a fresh temporary file so the caller still owns and
// releases its asset.
type CachedGateway struct {
	next      Gateway
	store     Store
	namespace string
	settings  string
	prefix    string
	ttl       time.Duration
	workDir   string
	logger    *slog.Logger
}

func NewCachedGateway(next Gateway, store Store, prefix string, ttl time.Duration, workDir string, logger *slog.Logger) *CachedGateway {
	namespace := "speech"
	if named, ok := next.(Named); ok {
		namespace = named.Name()
	}
	fingerprint := ""
	if fp, ok := next.(Fingerprinted); ok {
		fingerprint = fp.Fingerprint()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGateway{
		next:      next,
		store:     store,
		namespace: namespace,
		settings:  fingerprint,
		prefix:    prefix,
		ttl:       ttl,
		workDir:   workDir,
		logger:    logger.With(slog.String("component", "speech-cache")),
	}
}

func (c *CachedGateway) Name() string { return c.namespace }

// Key returns the cache key for text under this gateway's backend and its
// voice settings.
func (c *CachedGateway) Key(text string) string {
	sum := sha256.Sum256([]byte(c.namespace + "\x00" + c.settings + "\x00" + text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedGateway) Synthesize(ctx context.Context, text string) (*Asset, error) {
	key := c.Key(text)
	if asset, err := c.load(ctx, key); err == nil {
		return asset, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("cache read failed", slog.String("error", err.Error()))
	}

	asset, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.save(ctx, key, asset); err != nil {
		c.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
	return asset, nil
}

func (c *CachedGateway) load(ctx context.Context, key string) (*Asset, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var entry cachedAudio
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.DurationNS <= 0 || len(entry.Audio) == 0 {
		return nil, ErrCacheMiss
	}
	file, err := createTemp(c.workDir, entry.Format)
	if err != nil {
		return nil, err
	}
	asset := &Asset{
		Path:     file.Name(),
		Format:   entry.Format,
		Duration: time.Duration(entry.DurationNS),
		Backend:  entry.Backend,
	}
	_, err = file.Write(entry.Audio)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		asset.Release()
		return nil, fmt.Errorf("write cached audio: %w", err)
	}
	return asset, nil
}

func (c *CachedGateway) save(ctx context.Context, key string, asset *Asset) error {
	audio, err := os.ReadFile(asset.Path)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	data, err := json.Marshal(cachedAudio{
		Format:     asset.Format,
		DurationNS: int64(asset.Duration),
		Backend:    asset.Backend,
		Audio:      audio,
	})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, data, c.ttl)
}
