// Package db manages MongoDB and PostgreSQL connections for the document,
// object and account stores.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Collection names. The document store maps the first segment of a
// collection path onto one of these.
const (
	UsersCollection          = "users"
	MessagesCollection       = "messages"
	RecentMessagesCollection = "recent_messages"
	AccountsCollection       = "accounts"
	AvatarBucket             = "avatars"
)

// Client wraps mongo.Client and exposes the chat database.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the chat database; collections are created on first write
	db *mongo.Database
}

// New connects to MongoDB, pings the primary and returns a Client bound to
// database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if database == "" {
		database = "chat_db"
	}
	return &Client{client: client, db: client.Database(database)}, nil
}

// Database returns the chat database.
func (c *Client) Database() *mongo.Database { return c.db }

// Collection returns the named collection.
func (c *Client) Collection(name string) *mongo.Collection { return c.db.Collection(name) }

// Avatars returns the GridFS bucket holding avatar images.
func (c *Client) Avatars() *mongo.GridFSBucket {
	return c.db.GridFSBucket(options.GridFSBucket().SetName(AvatarBucket))
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// Unique login email for the credential store.
	_, err := c.Collection(AccountsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create accounts index: %w", err)
	}

	// Directory lookups filter on uid.
	_, err = c.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "uid", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	// Conversation and inbox listeners read one parent path ordered by time.
	threaded := mongo.IndexModel{
		Keys: bson.D{{Key: "_parent", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "_version", Value: 1}},
	}
	for _, name := range []string{MessagesCollection, RecentMessagesCollection} {
		if _, err := c.Collection(name).Indexes().CreateOne(ctx, threaded); err != nil {
			return fmt.Errorf("failed to create %s index: %w", name, err)
		}
	}
	return nil
}
