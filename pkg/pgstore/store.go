package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
)

// Store is the relational loop.Repository backed by PostgreSQL.
//
// Optimistic concurrency is enforced in a single upsert: the write only
// lands when the stored version still matches the version the caller read,
// otherwise the statement affects no rows and Save reports loop.ErrConflict.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing connection pool. The pool is owned by the
// caller; the store never closes it.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const saveQuery = `
INSERT INTO loop_records (
	record_id, ref, ref_number, repo, pr_url, pr_number,
	state, auto_merge, ci_status, labels, metadata, transitions,
	version, created_at, updated_at, closed_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)
ON CONFLICT (record_id) DO UPDATE SET
	pr_url      = EXCLUDED.pr_url,
	pr_number   = EXCLUDED.pr_number,
	state       = EXCLUDED.state,
	auto_merge  = EXCLUDED.auto_merge,
	ci_status   = EXCLUDED.ci_status,
	labels      = EXCLUDED.labels,
	metadata    = EXCLUDED.metadata,
	transitions = EXCLUDED.transitions,
	version     = EXCLUDED.version,
	updated_at  = EXCLUDED.updated_at,
	closed_at   = EXCLUDED.closed_at
WHERE loop_records.version = EXCLUDED.version - 1
RETURNING version`

// Save upserts the record, bumping its version. A version mismatch (another
// writer got there first) yields loop.ErrConflict.
func (s *Store) Save(ctx context.Context, record *loop.Record) (*loop.Record, error) {
	ciStatus, labels, metadata, transitions, err := marshalJSONColumns(record)
	if err != nil {
		return nil, err
	}

	stored := record.Clone()
	stored.Version = record.Version + 1

	err = s.pool.QueryRow(ctx, saveQuery,
		stored.ID, stored.Ref, stored.RefNumber, stored.Repo,
		stored.PRURL, stored.PRNumber,
		string(stored.State), stored.AutoMerge,
		ciStatus, labels, metadata, transitions,
		stored.Version, stored.CreatedAt, stored.UpdatedAt, stored.ClosedAt,
	).Scan(&stored.Version)
	if err != nil {
		if isNoRows(err) || isDuplicateKey(err) {
			return nil, loop.ErrConflict
		}
		return nil, err
	}
	return stored, nil
}

const getQuery = `
SELECT record_id, ref, ref_number, repo, pr_url, pr_number,
	state, auto_merge, ci_status, labels, metadata, transitions,
	version, created_at, updated_at, closed_at
FROM loop_records
WHERE record_id = $1`

// Get retrieves a record by ID, or loop.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*loop.Record, error) {
	record, err := scanRecord(s.pool.QueryRow(ctx, getQuery, id))
	if err != nil {
		if isNoRows(err) {
			return nil, loop.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// Delete removes a record by ID, reporting whether a row existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM loop_records WHERE record_id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const listByStateQuery = `
SELECT record_id, ref, ref_number, repo, pr_url, pr_number,
	state, auto_merge, ci_status, labels, metadata, transitions,
	version, created_at, updated_at, closed_at
FROM loop_records
WHERE state = $1
ORDER BY updated_at DESC
LIMIT $2`

// ListByState returns up to limit records in the given state, most recently
// updated first.
func (s *Store) ListByState(ctx context.Context, state lifecycle.State, limit int) ([]*loop.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, listByStateQuery, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*loop.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*loop.Record, error) {
	var (
		record      loop.Record
		state       string
		ciStatus    []byte
		labels      []byte
		metadata    []byte
		transitions []byte
	)
	err := row.Scan(
		&record.ID, &record.Ref, &record.RefNumber, &record.Repo,
		&record.PRURL, &record.PRNumber,
		&state, &record.AutoMerge,
		&ciStatus, &labels, &metadata, &transitions,
		&record.Version, &record.CreatedAt, &record.UpdatedAt, &record.ClosedAt,
	)
	if err != nil {
		return nil, err
	}

	record.State = lifecycle.State(state)
	if err := json.Unmarshal(ciStatus, &record.CIStatus); err != nil {
		return nil, fmt.Errorf("decode ci_status: %w", err)
	}
	if err := json.Unmarshal(labels, &record.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal(transitions, &record.Transitions); err != nil {
		return nil, fmt.Errorf("decode transitions: %w", err)
	}
	if record.Transitions == nil {
		record.Transitions = []loop.TransitionEntry{}
	}
	return &record, nil
}

func marshalJSONColumns(record *loop.Record) (ciStatus, labels, metadata, transitions []byte, err error) {
	if record == nil {
		return nil, nil, nil, nil, errors.New("record cannot be nil")
	}
	if ciStatus, err = marshalOr(record.CIStatus, "{}"); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode ci_status: %w", err)
	}
	if labels, err = marshalOr(record.Labels, "{}"); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode labels: %w", err)
	}
	if metadata, err = marshalOr(record.Metadata, "{}"); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	if transitions, err = marshalOr(record.Transitions, "[]"); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode transitions: %w", err)
	}
	return ciStatus, labels, metadata, transitions, nil
}

// marshalOr keeps jsonb columns non-null so scans never see SQL NULL.
func marshalOr[T any](v T, empty string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte(empty), nil
	}
	return data, nil
}
