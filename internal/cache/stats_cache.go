package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/pkg/utils"
)

const defaultStatsPrefix = "loan_stats"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errStale = errors.New("loan stats generation moved")

// StatsCache stores loan stats in one redis hash per user, one field per
// calendar day. Each user also has a generation counter that Invalidate bumps;
// Set only writes when the generation is still the one Get returned, so a
// read that raced an issue or return cannot put stale counts back.
type StatsCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, prefix: defaultStatsPrefix, ttl: ttl}
}

// Get returns nil stats on a miss. The generation is valid either way and
// must be handed back to Set.
func (c *StatsCache) Get(ctx context.Context, userID int64, today time.Time) (*domain.LoanStats, int64, error) {
	pipe := c.client.Pipeline()
	genCmd := pipe.Get(ctx, c.generationKey(userID))
	statsCmd := pipe.HGet(ctx, c.key(userID), utils.FormatDate(today))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis get loan stats: %w", err)
	}

	generation, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("decode loan stats generation: %w", err)
	}

	raw, err := statsCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, generation, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get loan stats: %w", err)
	}

	var stats domain.LoanStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, 0, fmt.Errorf("decode cached loan stats: %w", err)
	}
	return &stats, generation, nil
}

// Set stores stats computed after a Get that returned generation. The write is
// dropped without error when the user was invalidated in between.
func (c *StatsCache) Set(ctx context.Context, userID int64, today time.Time, generation int64, stats *domain.LoanStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode loan stats: %w", err)
	}

	key, genKey := c.key(userID), c.generationKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, utils.FormatDate(today), raw)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil, errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("redis set loan stats: %w", err)
	}
}

// Invalidate drops the user's cached stats and moves the generation on.
func (c *StatsCache) Invalidate(ctx context.Context, userID int64) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.generationKey(userID))
	pipe.Del(ctx, c.key(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate loan stats: %w", err)
	}
	return nil
}

func (c *StatsCache) key(userID int64) string {
	return c.prefix + ":" + strconv.FormatInt(userID, 10)
}

func (c *StatsCache) generationKey(userID int64) string {
	return c.prefix + ":gen:" + strconv.FormatInt(userID, 10)
}
