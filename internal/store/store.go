package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kvlite-go/kvlite/internal/kverrors"
	"github.com/kvlite-go/kvlite/internal/sqlitekit"
)

// Store runs the entry-store operations against a sqlitekit.Driver,
// retrying transient busy/locked conditions with backoff.
type Store struct {
	driver sqlitekit.Driver
	expiry ExpiryEngine
}

// New wraps driver in a Store.
func New(driver sqlitekit.Driver) *Store {
	return &Store{driver: driver}
}

const parentCols = 5

// scanArgs builds the five (parent_key_i, parent_hash_i) argument pairs for
// an INSERT/UPDATE, nil-padding any slots beyond len(parents).
func scanArgs(parents []ParentRef) []any {
	args := make([]any, 0, parentCols*2)
	for i := 0; i < parentCols; i++ {
		if i < len(parents) {
			args = append(args, parents[i].Key, parents[i].Hash)
		} else {
			args = append(args, nil, nil)
		}
	}
	return args
}

// isForeignKeyViolation reports whether err is the FK-constraint failure
// both bundled SQLite drivers report in their error text. A violating
// upsert surfaces as ParentMissing.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

// Upsert runs the two-phase insert-or-update inside one transaction, so a
// concurrent observer never sees a partially-written row.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	if err := validateParents(e.Parents, s.driver.MaxParentKeys()); err != nil {
		return err
	}
	tmpl := s.driver.Templates()
	parentArgs := scanArgs(e.Parents)

	insertArgs := append([]any{
		e.Hash, e.PartitionHash, e.Partition, e.Key, e.UTCExpiry, e.Interval, e.Value, e.Compressed, e.UTCCreation,
	}, parentArgs...)

	updateArgs := append([]any{
		e.Partition, e.Key, e.UTCExpiry, e.Interval, e.Value, e.Compressed, e.UTCCreation,
	}, append(parentArgs, e.Hash)...)

	err := sqlitekit.RetryableTx(ctx, s.driver.DB(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, tmpl.InsertIgnore, insertArgs...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tmpl.UpdateByHash, updateArgs...); err != nil {
			return err
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return kverrors.New("Upsert", kverrors.ParentMissing, err)
	}
	return err
}

// Contains reports whether hash is present and observable at now, without
// touching expiry.
func (s *Store) Contains(ctx context.Context, hash int64, now int64) (bool, error) {
	var one int
	err := sqlitekit.RetryableQueryRowScan(ctx, s.driver.DB(), s.driver.Templates().ContainsByHash, []any{hash, now}, &one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of rows, optionally scoped to partitionHash and
// filtered by mode.
func (s *Store) Count(ctx context.Context, partitionHash *int64, mode CountMode, now int64) (int64, error) {
	tmpl := s.driver.Templates()
	var query string
	var args []any
	switch {
	case partitionHash != nil && mode == IgnoreExpiry:
		query, args = tmpl.CountPartition, []any{*partitionHash}
	case partitionHash != nil && mode == ConsiderExpiry:
		query, args = tmpl.CountObservablePartition, []any{*partitionHash, now}
	case partitionHash == nil && mode == IgnoreExpiry:
		query, args = tmpl.CountAll, nil
	default:
		query, args = tmpl.CountObservableAll, []any{now}
	}
	var n int64
	err := sqlitekit.RetryableQueryRowScan(ctx, s.driver.DB(), query, args, &n)
	return n, err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// rowScan decodes the column shape shared by every select: hash,
// partition_hash, partition, key, utc_expiry, interval, value, compressed,
// utc_creation, then 5 (parent_key, parent_hash) pairs.
func rowScan(s scanner) (Entry, error) {
	var e Entry
	pk := make([]sql.NullString, parentCols)
	ph := make([]sql.NullInt64, parentCols)
	dest := []any{
		&e.Hash, &e.PartitionHash, &e.Partition, &e.Key, &e.UTCExpiry, &e.Interval,
		&e.Value, &e.Compressed, &e.UTCCreation,
	}
	for i := 0; i < parentCols; i++ {
		dest = append(dest, &pk[i], &ph[i])
	}
	if err := s.Scan(dest...); err != nil {
		return Entry{}, err
	}
	for i := 0; i < parentCols; i++ {
		if ph[i].Valid {
			e.Parents = append(e.Parents, ParentRef{Key: pk[i].String, Hash: ph[i].Int64})
		}
	}
	return e, nil
}

// Get is the touching read: selects by hash, returns a miss if absent or
// expired, otherwise extends a sliding entry's expiry in the same
// transaction before returning the row.
func (s *Store) Get(ctx context.Context, hash int64, now int64) (Entry, bool, error) {
	tmpl := s.driver.Templates()
	var found Entry
	var ok bool
	err := sqlitekit.RetryableTx(ctx, s.driver.DB(), func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, tmpl.SelectByHash, hash)
		e, err := rowScan(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if e.UTCExpiry < now {
			return nil
		}
		ok = true
		newExpiry, touched := s.expiry.NextExpiry(now, e.Interval, e.UTCExpiry)
		if touched {
			if _, err := tx.ExecContext(ctx, tmpl.UpdateExpiryByHash, newExpiry, hash); err != nil {
				return err
			}
			e.UTCExpiry = newExpiry
		}
		found = e
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return found, ok, nil
}

// Peek is the non-touching read; NotSupported on drivers that advertise
// CanPeek() == false.
func (s *Store) Peek(ctx context.Context, hash int64, now int64) (Entry, bool, error) {
	if !s.driver.CanPeek() {
		return Entry{}, false, kverrors.New("Peek", kverrors.NotSupported, nil)
	}
	row := s.driver.DB().QueryRowContext(ctx, s.driver.Templates().SelectByHash, hash)
	e, err := rowScan(row)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if e.UTCExpiry < now {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *Store) selectItems(ctx context.Context, tx *sql.Tx, partitionHash *int64, now int64) ([]Entry, error) {
	tmpl := s.driver.Templates()
	var rows *sql.Rows
	var err error
	if partitionHash != nil {
		rows, err = tx.QueryContext(ctx, tmpl.SelectItemsByPartition, *partitionHash, now)
	} else {
		rows, err = tx.QueryContext(ctx, tmpl.SelectItemsAll, now)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := rowScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetItems is the batch touching read: every sliding row returned is
// extended in the same transaction as the select.
func (s *Store) GetItems(ctx context.Context, partitionHash *int64, now int64) ([]Entry, error) {
	tmpl := s.driver.Templates()
	var out []Entry
	err := sqlitekit.RetryableTx(ctx, s.driver.DB(), func(tx *sql.Tx) error {
		items, err := s.selectItems(ctx, tx, partitionHash, now)
		if err != nil {
			return err
		}
		for i, e := range items {
			newExpiry, touched := s.expiry.NextExpiry(now, e.Interval, e.UTCExpiry)
			if touched {
				if _, err := tx.ExecContext(ctx, tmpl.UpdateExpiryByHash, newExpiry, e.Hash); err != nil {
					return err
				}
				items[i].UTCExpiry = newExpiry
			}
		}
		out = items
		return nil
	})
	return out, err
}

// PeekItems is the batch non-touching read; NotSupported on drivers that
// advertise CanPeek() == false.
func (s *Store) PeekItems(ctx context.Context, partitionHash *int64, now int64) ([]Entry, error) {
	if !s.driver.CanPeek() {
		return nil, kverrors.New("PeekItems", kverrors.NotSupported, nil)
	}
	tmpl := s.driver.Templates()
	db := s.driver.DB()
	var rows *sql.Rows
	var err error
	if partitionHash != nil {
		rows, err = sqlitekit.RetryableQuery(ctx, db, tmpl.SelectItemsByPartition, *partitionHash, now)
	} else {
		rows, err = sqlitekit.RetryableQuery(ctx, db, tmpl.SelectItemsAll, now)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := rowScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Remove deletes the row by hash; ON DELETE CASCADE handles dependents.
func (s *Store) Remove(ctx context.Context, hash int64) error {
	_, err := sqlitekit.RetryableExec(ctx, s.driver.DB(), s.driver.Templates().DeleteByHash, hash)
	return err
}

// Clear deletes all rows, or all rows in partitionHash, filtered by mode,
// and returns the count removed.
func (s *Store) Clear(ctx context.Context, partitionHash *int64, mode CountMode, now int64) (int64, error) {
	tmpl := s.driver.Templates()
	var query string
	var args []any
	switch {
	case partitionHash != nil && mode == IgnoreExpiry:
		query, args = tmpl.DeletePartition, []any{*partitionHash}
	case partitionHash != nil && mode == ConsiderExpiry:
		query, args = tmpl.DeleteExpiredPartition, []any{*partitionHash, now}
	case partitionHash == nil && mode == IgnoreExpiry:
		query, args = tmpl.DeleteAll, nil
	default:
		query, args = tmpl.DeleteExpiredAll, []any{now}
	}
	result, err := sqlitekit.RetryableExec(ctx, s.driver.DB(), query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return n, err
}

// SizeInBytes sums LENGTH(value) across the table or a partition.
func (s *Store) SizeInBytes(ctx context.Context, partitionHash *int64) (int64, error) {
	tmpl := s.driver.Templates()
	var query string
	var args []any
	if partitionHash != nil {
		query, args = tmpl.SizeInBytesPartition, []any{*partitionHash}
	} else {
		query, args = tmpl.SizeInBytesAll, nil
	}
	var n int64
	err := sqlitekit.RetryableQueryRowScan(ctx, s.driver.DB(), query, args, &n)
	return n, err
}

// UpdateExpiry directly mutates a row's utc_expiry, used by the refresh
// engine outside the Get/GetItems touch paths.
func (s *Store) UpdateExpiry(ctx context.Context, hash int64, newExpiry int64) error {
	_, err := sqlitekit.RetryableExec(ctx, s.driver.DB(), s.driver.Templates().UpdateExpiryByHash, newExpiry, hash)
	return err
}

// ParentDepth returns how many levels of parents a breadth-first walk from
// hash reaches (0 if hash has no existing parents, or doesn't exist at all),
// used by the facade to enforce MaxParentKeyTreeDepth before a write. Each
// ancestor is counted at the shallowest level it is first reached. Traversal
// never visits more than maxDepth+1 levels or revisits a hash, so a
// malformed or very deep chain can't run away.
func (s *Store) ParentDepth(ctx context.Context, hash int64, maxDepth int) (int, error) {
	tmpl := s.driver.Templates()
	db := s.driver.DB()

	frontier := []int64{hash}
	seen := map[int64]bool{hash: true}
	depth := 0
	for len(frontier) > 0 && depth <= maxDepth {
		var next []int64
		for _, h := range frontier {
			row := db.QueryRowContext(ctx, tmpl.SelectParentHashes, h)
			cols := make([]sql.NullInt64, parentCols)
			dest := make([]any, parentCols)
			for i := range cols {
				dest[i] = &cols[i]
			}
			if err := row.Scan(dest...); err != nil {
				if err == sql.ErrNoRows {
					continue
				}
				return 0, err
			}
			for _, p := range cols {
				if p.Valid && !seen[p.Int64] {
					seen[p.Int64] = true
					next = append(next, p.Int64)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		depth++
		frontier = next
	}
	return depth, nil
}
