// Package mongostore provides the MongoDB-backed loop.Repository using the
// official mongo-driver/v2.
//
// Each record is one document keyed by record ID, which makes single-record
// writes atomic as the Repository contract requires. A compound
// (state, updated_at) index serves ListByState. Concurrent writers are
// arbitrated by a version-filtered replace; a lost race surfaces as
// loop.ErrConflict.
//
// # Usage
//
//	var cfg mongostore.Config
//	config.MustLoad(&cfg)
//
//	client, err := mongostore.Connect(ctx, cfg)
//	if err != nil { /* ... */ }
//	defer client.Disconnect(ctx)
//
//	store := mongostore.NewStore(mongostore.CollectionFor(client, cfg))
//	if err := store.EnsureIndexes(ctx); err != nil { /* ... */ }
//
//	svc := loop.MustNew(store)
package mongostore
