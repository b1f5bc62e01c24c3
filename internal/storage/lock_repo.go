package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LockRepo hands out one load lease per collection so that concurrent loaders sharing
// the database cannot both observe an empty index and double insert.
type LockRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewLockRepo creates a new LockRepo.
func NewLockRepo(db *sql.DB) *LockRepo {
	return &LockRepo{db: db, now: time.Now}
}

// Acquire tries to take the lease on collection for owner.
// A lease older than staleAfter is taken over. It returns false when another owner holds a live lease.
func (r *LockRepo) Acquire(ctx context.Context, collection, owner string, staleAfter time.Duration) (bool, error) {
	now := r.now().UTC()

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO load_locks (collection, owner, acquired_at) VALUES (?, ?, ?) ON CONFLICT(collection) DO NOTHING",
		collection, owner, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert load lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	current, err := r.Get(ctx, collection)
	if errors.Is(err, ErrNotFound) {
		// Released between the insert and the read: try once more.
		return r.Acquire(ctx, collection, owner, staleAfter)
	}
	if err != nil {
		return false, err
	}
	if current.Owner == owner {
		return true, nil
	}
	if now.Sub(current.AcquiredAt) < staleAfter {
		return false, nil
	}

	res, err = r.db.ExecContext(ctx,
		"UPDATE load_locks SET owner = ?, acquired_at = ? WHERE collection = ? AND owner = ?",
		owner, now, collection, current.Owner,
	)
	if err != nil {
		return false, fmt.Errorf("failed to take over load lock: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Release drops the lease if owner holds it.
func (r *LockRepo) Release(ctx context.Context, collection, owner string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM load_locks WHERE collection = ? AND owner = ?", collection, owner); err != nil {
		return fmt.Errorf("failed to release load lock: %w", err)
	}
	return nil
}

// Get returns the current lease on collection. Returns ErrNotFound if none.
func (r *LockRepo) Get(ctx context.Context, collection string) (*LoadLock, error) {
	var lock LoadLock
	err := r.db.QueryRowContext(ctx,
		"SELECT collection, owner, acquired_at FROM load_locks WHERE collection = ?",
		collection,
	).Scan(&lock.Collection, &lock.Owner, &lock.AcquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query load lock: %w", err)
	}
	return &lock, nil
}
