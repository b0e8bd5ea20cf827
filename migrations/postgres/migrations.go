// Package migrations holds the Postgres schema for the shared key-set cache
// used by storage/postgres.
package migrations

import (
	"embed"
	"fmt"

	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var sqlFS embed.FS

// FS exposes the embedded SQL for runners other than bun (psql, atlas).
var FS = sqlFS

// Migrations registers the jwks_cache migrations with bun/migrate:
//
//	m := migrate.NewMigrator(db, migrations.Migrations)
//	_ = m.Init(ctx)
//	_, _ = m.Migrate(ctx)
var Migrations = mustDiscover(sqlFS)

func mustDiscover(fsys embed.FS) *migrate.Migrations {
	m := migrate.NewMigrations()
	if err := m.Discover(fsys); err != nil {
		panic(fmt.Sprintf("migrations: discover embedded sql: %v", err))
	}
	return m
}
