// Package redisstore provides the key-value loop.Repository backed by
// Redis via go-redis/v9.
//
// Records are JSON blobs keyed by record ID; per-state sorted sets scored
// by updated_at make ListByState a single ZREVRANGE plus point reads.
// Save runs inside a WATCH-guarded transaction so the version check and the
// write are atomic with respect to concurrent writers; a lost race is
// reported as loop.ErrConflict.
//
// # Usage
//
//	var cfg redisstore.Config
//	config.MustLoad(&cfg)
//
//	client, err := redisstore.Connect(ctx, cfg)
//	if err != nil { /* ... */ }
//	defer client.Close()
//
//	svc := loop.MustNew(redisstore.NewStore(client, cfg.KeyPrefix))
package redisstore
