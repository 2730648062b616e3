package repository

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crypto-signal-scraper/internal/entity"
	"crypto-signal-scraper/pkg/logger"
	redisPkg "crypto-signal-scraper/pkg/redis"
)

// ErrStoreUnavailable is returned while the service runs without a database
// connection. Callers keep running in a degraded state.
var ErrStoreUnavailable = errors.New("signal store unavailable")

// tombstoneSetKey is the Redis set holding every tombstoned signal id.
const tombstoneSetKey = "signals:tombstones"

// SignalRepository is the persistence adapter for signals and tombstones.
type SignalRepository interface {
	Upsert(ctx context.Context, signal *entity.Signal) (accepted bool, isNew bool, err error)
	Tombstone(ctx context.Context, id string) (newly bool, err error)
	IsTombstoned(ctx context.Context, id string) (bool, error)
	Recent(ctx context.Context, limit int, status entity.SignalStatus) ([]entity.Signal, error)
	Stats(ctx context.Context) (*entity.StoreStats, error)
	PurgeTombstones(ctx context.Context, olderThan time.Duration) (int64, error)
	WarmTombstoneCache(ctx context.Context) error
	Connected() bool
}

type signalRepository struct {
	db     *gorm.DB
	cache  *redisPkg.Client
	log    *logger.Logger
	locks  *keyedMutex
	warmed atomic.Bool
}

// NewSignalRepository creates the adapter. db may be nil (degraded mode) and
// cache may be nil (tombstone checks then always hit the database).
func NewSignalRepository(db *gorm.DB, cache *redisPkg.Client, log *logger.Logger) SignalRepository {
	return &signalRepository{
		db:    db,
		cache: cache,
		log:   log,
		locks: newKeyedMutex(),
	}
}

func (r *signalRepository) Connected() bool {
	return r.db != nil
}

// WarmTombstoneCache loads every tombstone id into the Redis set so steady
// state checks avoid a database round trip. Safe to skip; the database stays
// authoritative until warming succeeds.
func (r *signalRepository) WarmTombstoneCache(ctx context.Context) error {
	if r.db == nil || r.cache == nil {
		return nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).Model(&entity.Tombstone{}).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		if err := r.cache.SAdd(ctx, tombstoneSetKey, members...).Err(); err != nil {
			return err
		}
	}
	r.warmed.Store(true)
	r.log.Info("Tombstone cache warmed", logger.IntField("count", len(ids)))
	return nil
}

// Upsert inserts or fully replaces the record keyed by signal id, rejecting
// tombstoned ids. Operations on the same id are serialized so a tombstone
// recorded while an upsert is in flight cannot be undone by it.
func (r *signalRepository) Upsert(ctx context.Context, signal *entity.Signal) (bool, bool, error) {
	if r.db == nil {
		return false, false, ErrStoreUnavailable
	}

	unlock := r.locks.Lock(signal.ID)
	defer unlock()

	tombstoned, err := r.isTombstonedLocked(ctx, signal.ID)
	if err != nil {
		return false, false, err
	}
	if tombstoned {
		r.log.DebugContext(ctx, "Upsert rejected, id is tombstoned", logger.StringField("id", signal.ID))
		return false, false, nil
	}

	var existing entity.Signal
	isNew := false
	err = r.db.WithContext(ctx).Where("id = ?", signal.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		isNew = true
	case err != nil:
		return false, false, err
	default:
		// Full replacement of everything except status and hit_targets,
		// which belong to the external evaluator.
		signal.Status = existing.Status
		signal.HitTargets = existing.HitTargets
	}

	if err := r.db.WithContext(ctx).Save(signal).Error; err != nil {
		return false, false, err
	}
	return true, isNew, nil
}

// Tombstone idempotently records the tombstone for id and removes any active
// record. newly reports whether the tombstone did not exist before.
func (r *signalRepository) Tombstone(ctx context.Context, id string) (bool, error) {
	if r.db == nil {
		return false, ErrStoreUnavailable
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	tombstone := entity.Tombstone{ID: id, DeletedAt: time.Now().UTC()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tombstone)
	if result.Error != nil {
		return false, result.Error
	}
	newly := result.RowsAffected > 0

	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Signal{}).Error; err != nil {
		return false, err
	}

	if r.cache != nil {
		if err := r.cache.SAdd(ctx, tombstoneSetKey, id).Err(); err != nil {
			r.log.Warn("Failed to add tombstone to cache", logger.StringField("id", id), logger.ErrorField(err))
		}
	}

	return newly, nil
}

// IsTombstoned reports whether id is tombstoned.
func (r *signalRepository) IsTombstoned(ctx context.Context, id string) (bool, error) {
	unlock := r.locks.Lock(id)
	defer unlock()
	return r.isTombstonedLocked(ctx, id)
}

func (r *signalRepository) isTombstonedLocked(ctx context.Context, id string) (bool, error) {
	if r.cache != nil && r.warmed.Load() {
		found, err := r.cache.SIsMember(ctx, tombstoneSetKey, id).Result()
		if err == nil {
			return found, nil
		}
		r.log.Warn("Tombstone cache check failed, falling back to database", logger.ErrorField(err))
	}

	if r.db == nil {
		return false, ErrStoreUnavailable
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.Tombstone{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Recent returns up to limit records in descending chronological order,
// optionally filtered by status.
func (r *signalRepository) Recent(ctx context.Context, limit int, status entity.SignalStatus) ([]entity.Signal, error) {
	if r.db == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	// Always a list, never nil: observers and the HTTP surface serialize
	// this directly and an empty store must read as [].
	signals := []entity.Signal{}
	if err := query.Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}

// Stats returns aggregate counts over the active store.
func (r *signalRepository) Stats(ctx context.Context) (*entity.StoreStats, error) {
	if r.db == nil {
		return nil, ErrStoreUnavailable
	}

	stats := &entity.StoreStats{}
	counts := []struct {
		status entity.SignalStatus
		dest   *int64
	}{
		{"", &stats.Total},
		{entity.StatusActive, &stats.Active},
		{entity.StatusHitTP, &stats.HitTP},
		{entity.StatusHitSL, &stats.HitSL},
	}
	for _, c := range counts {
		query := r.db.WithContext(ctx).Model(&entity.Signal{})
		if c.status != "" {
			query = query.Where("status = ?", c.status)
		}
		if err := query.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	if closed := stats.HitTP + stats.HitSL; closed > 0 {
		stats.WinRate = math.Round(float64(stats.HitTP)/float64(closed)*1000) / 10
	}
	return stats, nil
}

// PurgeTombstones removes tombstones older than the given age. Only called
// when a retention policy is explicitly configured; the default is to keep
// tombstones forever.
func (r *signalRepository) PurgeTombstones(ctx context.Context, olderThan time.Duration) (int64, error) {
	if r.db == nil {
		return 0, ErrStoreUnavailable
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var ids []string
	if err := r.db.WithContext(ctx).Model(&entity.Tombstone{}).Where("deleted_at < ?", cutoff).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&entity.Tombstone{}).Error; err != nil {
		return 0, err
	}

	if r.cache != nil {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		if err := r.cache.SRem(ctx, tombstoneSetKey, members...).Err(); err != nil {
			r.log.Warn("Failed to drop purged tombstones from cache", logger.ErrorField(err))
		}
	}

	return int64(len(ids)), nil
}
