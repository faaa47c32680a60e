// Package pgstore provides the PostgreSQL-backed loop.Repository using the
// pgx/v5 driver, with goose-managed schema migrations embedded in the
// package.
//
// Records live in a single loop_records table; the transition history and
// the opaque metadata maps are stored as jsonb so the audit trail
// round-trips losslessly. A (state, updated_at DESC) index serves
// ListByState.
//
// Concurrent writers are arbitrated optimistically: Save performs a
// conditional upsert that only lands when the stored version matches the
// version the caller read, and reports loop.ErrConflict otherwise. Callers
// retry the whole transition on conflict.
//
// # Usage
//
//	var cfg pgstore.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err != nil { /* ... */ }
//	defer pool.Close()
//
//	if err := pgstore.Migrate(ctx, pool, slog.Default()); err != nil { /* ... */ }
//
//	svc := loop.MustNew(pgstore.NewStore(pool))
package pgstore
