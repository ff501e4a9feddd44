package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"loyaltykit/core"
	"loyaltykit/engine"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"LOYALTYKIT_STORAGE_REDIS_ADDR"`
	Password     string        `json:"password" env:"LOYALTYKIT_STORAGE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"LOYALTYKIT_STORAGE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"LOYALTYKIT_STORAGE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"LOYALTYKIT_STORAGE_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"LOYALTYKIT_STORAGE_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"LOYALTYKIT_STORAGE_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"LOYALTYKIT_STORAGE_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure:
// - achievement:{id} -> JSON blob of the achievement instance
// - subject:{customer}@{center}:achievements -> set of instance ids
// - stats:{id} -> JSON blob of the stats row
// - subject:{customer}@{center}:stats -> stats row id (SETNX-guarded)
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func achievementKey(id string) string { return "achievement:" + id }
func statsKey(id string) string       { return "stats:" + id }

func subjectAchievementsKey(customer core.CustomerID, center core.CenterID) string {
	return "subject:" + core.SubjectKey(customer, center) + ":achievements"
}

func subjectStatsKey(customer core.CustomerID, center core.CenterID) string {
	return "subject:" + core.SubjectKey(customer, center) + ":stats"
}

// Lua script merging an achievement patch server-side while guarding unlock
// monotonicity: is_unlocked never flips back and unlocked_at is written once.
var updateAchievementScript = redis.NewScript(`
	local raw = redis.call('GET', KEYS[1])
	if not raw then
		return 0
	end
	local obj = cjson.decode(raw)
	obj['progress'] = tonumber(ARGV[1])
	if ARGV[2] == '1' and obj['is_unlocked'] ~= true then
		obj['is_unlocked'] = true
		if ARGV[3] ~= '' then
			obj['unlocked_at'] = ARGV[3]
		end
	end
	redis.call('SET', KEYS[1], cjson.encode(obj))
	return 1
`)

func (s *Store) SelectAchievements(ctx context.Context, customer core.CustomerID, center core.CenterID) ([]core.AchievementState, error) {
	ids, err := s.client.SMembers(ctx, subjectAchievementsKey(customer, center)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement ids: %w", err)
	}
	out := make([]core.AchievementState, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, achievementKey(id)).Bytes()
		if err != nil {
			continue // Skip dangling ids
		}
		var st core.AchievementState
		if err := json.Unmarshal(raw, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Store) InsertAchievements(ctx context.Context, instances []core.AchievementState) error {
	if len(instances) == 0 {
		return nil
	}
	setKey := subjectAchievementsKey(instances[0].CustomerID, instances[0].CenterID)
	count, err := s.client.SCard(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check achievement set: %w", err)
	}
	if count > 0 {
		return engine.ErrDuplicate
	}

	pipe := s.client.TxPipeline()
	for _, inst := range instances {
		raw, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("failed to marshal achievement %s: %w", inst.Type, err)
		}
		pipe.Set(ctx, achievementKey(inst.ID), raw, 0)
		pipe.SAdd(ctx, setKey, inst.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert achievements: %w", err)
	}
	return nil
}

func (s *Store) UpdateAchievement(ctx context.Context, id string, patch engine.AchievementPatch) error {
	unlocked := "0"
	if patch.Unlocked {
		unlocked = "1"
	}
	unlockedAt := ""
	if patch.UnlockedAt != nil {
		unlockedAt = patch.UnlockedAt.UTC().Format(time.RFC3339Nano)
	}
	result, err := updateAchievementScript.Run(ctx, s.client,
		[]string{achievementKey(id)}, patch.Progress, unlocked, unlockedAt).Result()
	if err != nil {
		return fmt.Errorf("failed to update achievement: %w", err)
	}
	if n, ok := result.(int64); ok && n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) SelectStats(ctx context.Context, customer core.CustomerID, center core.CenterID) (*core.Stats, error) {
	id, err := s.client.Get(ctx, subjectStatsKey(customer, center)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stats id: %w", err)
	}
	raw, err := s.client.Get(ctx, statsKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	var stats core.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

func (s *Store) InsertStats(ctx context.Context, stats core.Stats) (core.Stats, error) {
	ok, err := s.client.SetNX(ctx, subjectStatsKey(stats.CustomerID, stats.CenterID), stats.ID, 0).Result()
	if err != nil {
		return core.Stats{}, fmt.Errorf("failed to reserve stats slot: %w", err)
	}
	if !ok {
		return core.Stats{}, engine.ErrDuplicate
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return core.Stats{}, fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := s.client.Set(ctx, statsKey(stats.ID), raw, 0).Err(); err != nil {
		return core.Stats{}, fmt.Errorf("failed to store stats: %w", err)
	}
	return stats, nil
}

// UpdateStats applies the patch read-modify-write. Callers that need
// cross-call atomicity serialize per subject (the engine's single-writer
// lock does this).
func (s *Store) UpdateStats(ctx context.Context, id string, patch engine.StatsPatch) error {
	raw, err := s.client.Get(ctx, statsKey(id)).Bytes()
	if err == redis.Nil {
		return engine.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	var stats core.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return fmt.Errorf("failed to decode stats: %w", err)
	}
	if patch.TotalXP != nil {
		stats.TotalXP = *patch.TotalXP
	}
	if patch.Level != nil {
		stats.Level = *patch.Level
	}
	if patch.CurrentStreak != nil {
		stats.CurrentStreak = *patch.CurrentStreak
	}
	if patch.LongestStreak != nil {
		stats.LongestStreak = *patch.LongestStreak
	}
	if patch.LastSyncDate != nil {
		d := *patch.LastSyncDate
		stats.LastSyncDate = &d
	}
	if patch.TotalSyncs != nil {
		stats.TotalSyncs = *patch.TotalSyncs
	}
	updated, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := s.client.Set(ctx, statsKey(id), updated, 0).Err(); err != nil {
		return fmt.Errorf("failed to store stats: %w", err)
	}
	return nil
}

var _ engine.Storage = (*Store)(nil)
