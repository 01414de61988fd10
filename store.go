package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaVersion is written once into the singleton config row. It is never
// overwritten; migrations compare against it out of band.
const schemaVersion = 1

// ChannelStore persists gossip rows. Inserts ignore key conflicts so that
// replaying a stream after a restart is a sequence of no-ops; any other
// error is fatal to the caller.
type ChannelStore interface {
	InsertAnnouncement(ctx context.Context, a ChannelAnnouncement) error
	InsertUpdate(ctx context.Context, u ChannelUpdate) error
}

// postgresStore writes to channel_announcements and channel_updates.
// Uses ON CONFLICT ... DO NOTHING for idempotency: first write wins,
// duplicates are silently dropped.
type postgresStore struct {
	pool *pgxpool.Pool
}

// newPostgresStore connects, pings, and bootstraps the schema. Every
// bootstrap step is idempotent, so running it again after a restart is
// safe. Any step failing indicates misconfiguration and is returned as an
// error for the caller to treat as fatal.
func newPostgresStore(ctx context.Context, connStr string) (*postgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	s := &postgresStore{pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return s, nil
}

func (s *postgresStore) bootstrap(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS config (
			id INTEGER PRIMARY KEY,
			db_schema INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("create config table: %w", err)
	}

	// First writer wins; an existing row is never overwritten.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO config (id, db_schema) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		1, schemaVersion,
	)
	if err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS channel_announcements (
			short_channel_id_hex TEXT UNIQUE,
			block_height INTEGER,
			chain_hash_hex TEXT,
			announcement_signed BYTEA
		)
	`)
	if err != nil {
		return fmt.Errorf("create announcements table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS channel_updates (
			composite_index TEXT UNIQUE,
			chain_hash_hex TEXT,
			short_channel_id_hex TEXT,
			timestamp BIGINT,
			channel_flags INTEGER,
			direction INTEGER,
			disable BOOLEAN,
			cltv_expiry_delta INTEGER,
			htlc_minimum_msat BIGINT,
			fee_base_msat INTEGER,
			fee_proportional_millionths INTEGER,
			htlc_maximum_msat BIGINT,
			update_signed BYTEA
		)
	`)
	if err != nil {
		return fmt.Errorf("create updates table: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`CREATE INDEX IF NOT EXISTS channel_updates_scid ON channel_updates (short_channel_id_hex)`)
	batch.Queue(`CREATE INDEX IF NOT EXISTS channel_updates_timestamp ON channel_updates (timestamp)`)
	batch.Queue(`CREATE INDEX IF NOT EXISTS channel_updates_direction ON channel_updates (direction)`)
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create indices: %w", err)
	}
	return nil
}

func (s *postgresStore) InsertAnnouncement(ctx context.Context, a ChannelAnnouncement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_announcements (
			short_channel_id_hex,
			block_height,
			chain_hash_hex,
			announcement_signed
		) VALUES ($1, $2, $3, $4)
		ON CONFLICT (short_channel_id_hex) DO NOTHING`,
		scidHex(a.ShortChannelID),
		int32(blockHeight(a.ShortChannelID)),
		chainHashHex(a.ChainHash),
		a.Signed,
	)
	return err
}

func (s *postgresStore) InsertUpdate(ctx context.Context, u ChannelUpdate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_updates (
			composite_index,
			chain_hash_hex,
			short_channel_id_hex,
			timestamp,
			channel_flags,
			direction,
			disable,
			cltv_expiry_delta,
			htlc_minimum_msat,
			fee_base_msat,
			fee_proportional_millionths,
			htlc_maximum_msat,
			update_signed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (composite_index) DO NOTHING`,
		u.CompositeIndex(),
		chainHashHex(u.ChainHash),
		scidHex(u.ShortChannelID),
		int64(u.Timestamp),
		int32(u.ChannelFlags),
		int32(u.Direction()),
		u.Disabled(),
		int32(u.CLTVExpiryDelta),
		int64(u.HTLCMinimumMsat),
		int32(u.FeeBaseMsat),
		int32(u.FeeProportionalMillionths),
		int64(u.HTLCMaximumMsat),
		u.Signed,
	)
	return err
}

// WatchLiveness pings the store until ctx ends. The first failed ping is
// reported on the returned channel and the watcher stops; there is no
// reconnect path, a lost connection ends the process.
func (s *postgresStore) WatchLiveness(ctx context.Context, interval time.Duration) <-chan error {
	errc := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.pool.Ping(ctx); err != nil {
					errc <- fmt.Errorf("store connection lost: %w", err)
					return
				}
			}
		}
	}()
	return errc
}

func (s *postgresStore) Close() {
	s.pool.Close()
}
