package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "bff:payments:student:"
	genPrefix = "bff:payments:gen:"
	genTTL    = 24 * time.Hour
)

// Store is the subset of the redis client the cache needs. *redis.Client
// implements it.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// PaymentsCache keeps each student's payment list as the raw JSON the
// payment-service returned. Entries are stored per viewer in one hash per
// student, so a list is only served to a caller the payment-service already
// authorized, and one DEL drops every viewer's copy. A nil *PaymentsCache is
// a valid, always-missing cache.
//
// Each student also has a generation counter that Invalidate bumps. A reader
// takes the generation before fetching and hands it to Set, which discards
// the write if an invalidation landed in between.
type PaymentsCache struct {
	rdb     Store
	ttl     time.Duration
	logger  *zap.Logger
	metrics awspkg.MetricsRecorder
}

func NewPaymentsCache(rdb Store, ttl time.Duration, logger *zap.Logger) *PaymentsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentsCache{rdb: rdb, ttl: ttl, logger: logger}
}

// SetMetrics attaches a recorder for hits, misses and invalidations.
func (c *PaymentsCache) SetMetrics(m awspkg.MetricsRecorder) {
	if c == nil {
		return
	}
	c.metrics = m
}

func key(studentID int64) string {
	return keyPrefix + strconv.FormatInt(studentID, 10)
}

func genKey(studentID int64) string {
	return genPrefix + strconv.FormatInt(studentID, 10)
}

// Generation returns studentID's current invalidation count. A student that
// was never invalidated is at generation 0.
func (c *PaymentsCache) Generation(ctx context.Context, studentID int64) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, nil
	}
	gen, err := c.rdb.Get(ctx, genKey(studentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the list viewer last fetched for studentID. ok is false on a
// miss; a redis failure is reported as a miss plus the error.
func (c *PaymentsCache) Get(ctx context.Context, studentID int64, viewer string) ([]byte, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	b, err := c.rdb.HGet(ctx, key(studentID), viewer).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(awspkg.MetricCacheMisses)
		return nil, false, nil
	}
	if err != nil {
		c.record(awspkg.MetricCacheMisses)
		return nil, false, err
	}
	c.record(awspkg.MetricCacheHits)
	return b, true, nil
}

// Set stores payments as viewer's copy of studentID's list, provided the
// student is still at generation gen. The TTL covers the whole student
// entry. stored is false when the write was discarded.
//
// The generation is checked after the write: Invalidate bumps the counter
// before deleting the hash, so an invalidation either deletes this write
// itself or is seen here and the hash is dropped again.
func (c *PaymentsCache) Set(ctx context.Context, studentID int64, viewer string, payments []byte, gen int64) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	k := key(studentID)
	if err := c.rdb.HSet(ctx, k, viewer, payments).Err(); err != nil {
		return false, err
	}
	if err := c.rdb.Expire(ctx, k, c.ttl).Err(); err != nil {
		return false, err
	}
	current, err := c.Generation(ctx, studentID)
	if err == nil && current == gen {
		return true, nil
	}
	if delErr := c.rdb.Del(ctx, k).Err(); delErr != nil && err == nil {
		err = delErr
	}
	c.logger.Debug("Discarded stale payments cache write",
		zap.Int64("student_id", studentID), zap.Int64("generation", gen), zap.Int64("current", current))
	return false, err
}

// Invalidate drops every cached copy of studentID's list and moves the
// student to a new generation.
func (c *PaymentsCache) Invalidate(ctx context.Context, studentID int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	g := genKey(studentID)
	if err := c.rdb.Incr(ctx, g).Err(); err != nil {
		return err
	}
	if err := c.rdb.Expire(ctx, g, genTTL).Err(); err != nil {
		c.logger.Warn("Failed to set generation TTL", zap.Int64("student_id", studentID), zap.Error(err))
	}
	if err := c.rdb.Del(ctx, key(studentID)).Err(); err != nil {
		return err
	}
	c.record(awspkg.MetricCacheInvalidations)
	c.logger.Debug("Payments cache invalidated", zap.Int64("student_id", studentID))
	return nil
}

func (c *PaymentsCache) record(metric string) {
	if c.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.metrics.RecordCount(ctx, metric, map[string]string{"Service": "bff-service", "Cache": "payments"})
	}()
}
