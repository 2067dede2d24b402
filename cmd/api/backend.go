package main

import (
	"context"
	"fmt"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/blob"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/config"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/db"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/jackc/pgx/v5/pgxpool"
)

// backend bundles the stores of one storage choice.
type backend struct {
	docs     docstore.Store
	blobs    blob.Store
	accounts auth.AccountStore
	close    func()
}

// openBackend connects to the configured storage. The in-memory backend
// keeps everything in process and loses it on exit.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		client, err := connectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := client.CreateIndexes(ctx); err != nil {
			_ = client.Close(context.Background())
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return &backend{
			docs:     docstore.NewMongo(client.Database()),
			blobs:    blob.NewGridFS(client.Avatars(), cfg.PublicURL),
			accounts: auth.NewMongoAccounts(client.Collection(db.AccountsCollection)),
			close:    func() { _ = client.Close(context.Background()) },
		}, nil

	case config.BackendPostgres:
		pool, err := connectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		docs := docstore.NewPostgres(pool)
		return &backend{
			docs:     docs,
			blobs:    blob.NewPostgres(pool, cfg.PublicURL),
			accounts: auth.NewPostgresAccounts(pool),
			close: func() {
				docs.Close()
				pool.Close()
			},
		}, nil

	default:
		return &backend{
			docs:     docstore.NewMemory(),
			blobs:    blob.NewMemory(cfg.PublicURL),
			accounts: auth.NewMemoryAccounts(),
			close:    func() {},
		}, nil
	}
}

func connectMongo(ctx context.Context, cfg config.Config) (*db.Client, error) {
	client, err := db.WithRetry(ctx, cfg.ConnectAttempts, "mongodb", func(ctx context.Context) (*db.Client, error) {
		return db.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	return client, nil
}

func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.WithRetry(ctx, cfg.ConnectAttempts, "postgres", func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.NewPostgres(ctx, cfg.PostgresURL)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	return pool, nil
}

// migrate prepares the configured storage without serving.
func migrate(ctx context.Context, cfg config.Config) error {
	switch cfg.Backend {
	case config.BackendMongo:
		client, err := connectMongo(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close(context.Background()) }()
		return client.CreateIndexes(ctx)
	case config.BackendPostgres:
		pool, err := connectPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return db.MigratePostgres(ctx, pool)
	default:
		log.Infof("backend %q needs no migration", cfg.Backend)
		return nil
	}
}
