package auth

import (
	"context"
	"errors"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// mongoAccount maps to the accounts collection. The unique email index is
// created by db.Client.CreateIndexes.
type mongoAccount struct {
	UID       string    `bson:"_id"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoAccounts keeps credentials in a MongoDB collection.
type MongoAccounts struct {
	coll *mongo.Collection
}

// NewMongoAccounts returns a MongoAccounts using the provided collection.
func NewMongoAccounts(coll *mongo.Collection) *MongoAccounts {
	return &MongoAccounts{coll: coll}
}

func (m *MongoAccounts) CreateAccount(ctx context.Context, a Account) error {
	doc := mongoAccount{
		UID:       a.UID,
		Email:     a.Email,
		Password:  a.PasswordHash,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.CreatedAt,
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		// Unique email index violation.
		if mongo.IsDuplicateKeyError(err) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (m *MongoAccounts) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *MongoAccounts) AccountByID(ctx context.Context, uid string) (Account, error) {
	return m.findOne(ctx, bson.M{"_id": uid})
}

func (m *MongoAccounts) DeleteAccount(ctx context.Context, uid string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": uid})
	return err
}

func (m *MongoAccounts) findOne(ctx context.Context, filter bson.M) (Account, error) {
	var doc mongoAccount
	err := m.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, chaterr.ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return Account{UID: doc.UID, Email: doc.Email, PasswordHash: doc.Password, CreatedAt: doc.CreatedAt}, nil
}
