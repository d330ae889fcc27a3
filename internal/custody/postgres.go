package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockClass namespaces the per-identifier advisory locks taken by
// Append. It must be the same on every ledger instance.
const advisoryLockClass = int32(7_341_002)

const entryColumns = `evidence_id, version, ts, collector, description,
	md5_hash, sha1_hash, sha256_hash, sha512_hash, stored_at, prev_hash, hash`

// PostgresStore persists evidence chains in PostgreSQL (see migrations/).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	if err := row.Scan(
		&e.EvidenceID, &e.Seq, &e.Timestamp, &e.Collector, &e.Description,
		&e.Hashes.MD5, &e.Hashes.SHA1, &e.Hashes.SHA256, &e.Hashes.SHA512,
		&e.StoredAt, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.StoredAt = e.StoredAt.UTC()
	return e, nil
}

// Append implements Store. A transaction-scoped advisory lock on the
// identifier serialises concurrent appends to the same chain.
func (s *PostgresStore) Append(ctx context.Context, sub Submission) (*Entry, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		"SELECT pg_advisory_xact_lock($1, hashtext($2))", advisoryLockClass, sub.EvidenceID,
	); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM evidence_versions
		 WHERE evidence_id = $1 ORDER BY version DESC LIMIT 1`, sub.EvidenceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		prev, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	entry := newEntry(sub, prev)
	if _, err := tx.Exec(ctx,
		`INSERT INTO evidence_versions (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.EvidenceID, entry.Seq, entry.Timestamp, entry.Collector, entry.Description,
		entry.Hashes.MD5, entry.Hashes.SHA1, entry.Hashes.SHA256, entry.Hashes.SHA512,
		entry.StoredAt, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert evidence version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit evidence tx: %w", err)
	}

	s.logger.Debug("evidence version appended",
		zap.String("evidence_id", entry.EvidenceID),
		zap.Int64("version", entry.Seq),
		zap.String("hash", entry.Hash),
	)
	return entry, nil
}

// Latest implements Store.
func (s *PostgresStore) Latest(ctx context.Context, evidenceID string) (*Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM evidence_versions
		 WHERE evidence_id = $1 ORDER BY version DESC LIMIT 1`, evidenceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest version of %s: %w", evidenceID, err)
	}
	return e, nil
}

// History implements Store.
func (s *PostgresStore) History(ctx context.Context, evidenceID string) ([]*Entry, error) {
	out, err := s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM evidence_versions
		 WHERE evidence_id = $1 ORDER BY version ASC`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("get history of %s: %w", evidenceID, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
	}
	return out, nil
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) ([]*Entry, error) {
	out, err := s.queryEntries(ctx,
		`SELECT DISTINCT ON (evidence_id) `+entryColumns+` FROM evidence_versions
		 ORDER BY evidence_id, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) queryEntries(ctx context.Context, sql string, args ...any) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify implements Store. It streams every row ordered by identifier and
// version. O(n) in stored versions.
func (s *PostgresStore) Verify(ctx context.Context) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM evidence_versions ORDER BY evidence_id, version ASC`)
	if err != nil {
		return fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var v chainVerifier
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan evidence row: %w", err)
		}
		if err := v.next(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT evidence_id), COUNT(*) FROM evidence_versions",
	).Scan(&st.Identifiers, &st.Versions); err != nil {
		return Stats{}, fmt.Errorf("count evidence: %w", err)
	}
	return st, nil
}
