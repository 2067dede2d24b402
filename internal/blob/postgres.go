package blob

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores objects in the blobs table (see db.PostgresSchema).
type Postgres struct {
	pool      *pgxpool.Pool
	publicURL string
}

// NewPostgres returns a Postgres store over pool.
func NewPostgres(pool *pgxpool.Pool, publicURL string) *Postgres {
	return &Postgres{pool: pool, publicURL: publicURL}
}

func (p *Postgres) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO blobs (path, content_type, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path)
		DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, updated_at = now()`,
		path, contentType, data,
	)
	return chaterr.NewWrite(path+" put", err)
}

func (p *Postgres) Get(ctx context.Context, path string) (Object, error) {
	var obj Object
	err := p.pool.QueryRow(ctx, `SELECT content_type, data FROM blobs WHERE path = $1`, path).
		Scan(&obj.ContentType, &obj.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Object{}, chaterr.NewRead(path+" get", chaterr.ErrNotFound)
	}
	if err != nil {
		return Object{}, chaterr.NewRead(path+" get", err)
	}
	return obj, nil
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM blobs WHERE path = $1`, path)
	return chaterr.NewWrite(path+" delete", err)
}

func (p *Postgres) DownloadURL(ctx context.Context, path string) (string, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blobs WHERE path = $1)`, path).Scan(&exists)
	if err != nil {
		return "", chaterr.NewRead(path+" url", err)
	}
	if !exists {
		return "", chaterr.NewRead(path+" url", chaterr.ErrNotFound)
	}
	return URLFor(p.publicURL, path), nil
}
