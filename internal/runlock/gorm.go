package runlock

import (
	"context"
	"errors"
	"time"

	"energy-billing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLocker stores leases as rows in billing_run_locks so every instance
// sharing the database sees them. Expired rows are taken over.
type GormLocker struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewGormLocker(db *gorm.DB, ttl time.Duration) *GormLocker {
	return &GormLocker{db: db, ttl: ttl, now: time.Now}
}

func (l *GormLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	now := l.now().UTC()
	row := model.RunLock{
		LockKey:    key,
		Holder:     newHolder(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(l.ttl),
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lock_key = ? AND expires_at < ?", key, now).Delete(&model.RunLock{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrHeld
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &gormLease{locker: l, key: key, holder: row.Holder}, nil
}

type gormLease struct {
	locker *GormLocker
	key    string
	holder string
}

func (g *gormLease) Key() string { return g.key }

func (g *gormLease) TTL() time.Duration { return g.locker.ttl }

func (g *gormLease) Refresh(ctx context.Context) error {
	res := g.locker.db.WithContext(ctx).
		Model(&model.RunLock{}).
		Where("lock_key = ? AND holder = ?", g.key, g.holder).
		Update("expires_at", g.locker.now().UTC().Add(g.locker.ttl))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLost
	}
	return nil
}

func (g *gormLease) Release(ctx context.Context) error {
	err := g.locker.db.WithContext(ctx).
		Where("lock_key = ? AND holder = ?", g.key, g.holder).
		Delete(&model.RunLock{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
