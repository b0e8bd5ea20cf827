package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	oidckit "github.com/PaulFidika/oidcverify/oidc"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ oidckit.KeySetStore = (*KeySetStore)(nil)

// KeySetStore keeps raw JWKS documents in Postgres, for deployments that
// share a database but no Redis. The table is created by migrations/postgres.
// Expiry is compared with the database clock.
type KeySetStore struct {
	pg     *pgxpool.Pool
	schema string
}

func NewKeySetStore(pg *pgxpool.Pool, schema string) *KeySetStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "oidc"
	}
	return &KeySetStore{pg: pg, schema: s}
}

func (s *KeySetStore) table() string { return s.schema + ".jwks_cache" }

func (s *KeySetStore) Get(ctx context.Context, jwksURL string) ([]byte, time.Time, bool, error) {
	var doc []byte
	var exp time.Time
	err := s.pg.QueryRow(ctx,
		`SELECT document, expires_at FROM `+s.table()+` WHERE jwks_url = $1 AND expires_at > now()`,
		jwksURL).Scan(&doc, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return doc, exp, true, nil
}

func (s *KeySetStore) Put(ctx context.Context, jwksURL string, doc []byte, expiry time.Time) error {
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table()+` (jwks_url, document, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (jwks_url) DO UPDATE SET document = EXCLUDED.document, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		jwksURL, string(doc), expiry)
	return err
}

// DeleteExpired removes documents that expired before now and returns how
// many were dropped.
func (s *KeySetStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pg.Exec(ctx, `DELETE FROM `+s.table()+` WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
