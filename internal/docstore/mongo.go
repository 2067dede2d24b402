package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Reserved keys added to every MongoDB document.
const (
	mongoParentKey  = "_parent"
	mongoIDKey      = "_key"
	mongoVersionKey = "_version"
)

// Mongo stores documents in one MongoDB collection per root path segment
// ("messages/alice/bob/x" lives in "messages" with _parent "messages/alice/bob").
// Listen uses change streams and therefore needs a replica set.
type Mongo struct {
	db *mongo.Database
}

// NewMongo returns a Mongo store over db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (m *Mongo) coll(collection string) *mongo.Collection {
	root := collection
	if i := strings.Index(collection, "/"); i >= 0 {
		root = collection[:i]
	}
	return m.db.Collection(root)
}

// Set replaces collection/id, bumping its version in the same update.
func (m *Mongo) Set(ctx context.Context, collection, id string, f Fields) error {
	path := collection + "/" + id

	// $literal keeps user text such as "$x" from being read as a field path.
	doc := bson.D{
		{Key: "_id", Value: path},
		{Key: mongoParentKey, Value: collection},
		{Key: mongoIDKey, Value: id},
	}
	for k, v := range f {
		doc = append(doc, bson.E{Key: k, Value: bson.D{{Key: "$literal", Value: v}}})
	}
	doc = append(doc, bson.E{Key: mongoVersionKey, Value: bson.D{{Key: "$add", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$" + mongoVersionKey, int64(0)}}},
		int64(1),
	}}}})

	update := mongo.Pipeline{bson.D{{Key: "$replaceWith", Value: doc}}}
	_, err := m.coll(collection).UpdateOne(ctx, bson.D{{Key: "_id", Value: path}}, update, options.UpdateOne().SetUpsert(true))
	return chaterr.NewWrite(path+" set", err)
}

// Add inserts f under a new ObjectID-derived key.
func (m *Mongo) Add(ctx context.Context, collection string, f Fields) (string, error) {
	id := bson.NewObjectID().Hex()
	path := collection + "/" + id

	doc := bson.M{
		"_id":           path,
		mongoParentKey:  collection,
		mongoIDKey:      id,
		mongoVersionKey: int64(1),
	}
	for k, v := range f {
		doc[k] = v
	}
	if _, err := m.coll(collection).InsertOne(ctx, doc); err != nil {
		return "", chaterr.NewWrite(collection+" add", err)
	}
	return id, nil
}

// Get fetches collection/id.
func (m *Mongo) Get(ctx context.Context, collection, id string) (Document, error) {
	path := collection + "/" + id
	var raw bson.M
	err := m.coll(collection).FindOne(ctx, bson.D{{Key: "_id", Value: path}}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, chaterr.NewRead(path+" get", chaterr.ErrNotFound)
	}
	if err != nil {
		return Document{}, chaterr.NewRead(path+" get", err)
	}
	return fromMongo(raw), nil
}

// Delete removes collection/id.
func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	path := collection + "/" + id
	_, err := m.coll(collection).DeleteOne(ctx, bson.D{{Key: "_id", Value: path}})
	return chaterr.NewWrite(path+" delete", err)
}

// Query runs one find over collection.
func (m *Mongo) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	filter := bson.D{{Key: mongoParentKey, Value: collection}}
	for _, f := range filters {
		switch f.Op {
		case NotEqual:
			filter = append(filter, bson.E{Key: f.Field, Value: bson.D{{Key: "$ne", Value: f.Value}}})
		default:
			filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
		}
	}

	cursor, err := m.coll(collection).Find(ctx, filter)
	if err != nil {
		return nil, chaterr.NewRead(collection+" query", err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, chaterr.NewRead(collection+" query", err)
	}
	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromMongo(raw))
	}
	return docs, nil
}

// changeEvent is the subset of a change stream event Listen reads.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

// Listen opens a change stream before reading the snapshot so nothing
// written in between is lost; the version filter drops the overlap.
func (m *Mongo) Listen(ctx context.Context, collection, orderBy string) (*Subscription, error) {
	coll := m.coll(collection)

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{
		{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
		{Key: "fullDocument." + mongoParentKey, Value: collection},
	}}}}
	cs, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, chaterr.NewRead(collection+" listen", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: orderBy, Value: 1}, {Key: mongoVersionKey, Value: 1}})
	cursor, err := coll.Find(ctx, bson.D{{Key: mongoParentKey, Value: collection}}, opts)
	if err != nil {
		_ = cs.Close(context.Background())
		return nil, chaterr.NewRead(collection+" listen", err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		_ = cs.Close(context.Background())
		return nil, chaterr.NewRead(collection+" listen", err)
	}

	sub, ctx := newSubscription(ctx)
	go func() {
		err := m.pump(ctx, sub, cs, raws)
		_ = cs.Close(context.Background())
		if ctx.Err() != nil {
			err = nil
		}
		sub.finish(chaterr.NewRead(collection+" listen", err))
	}()
	return sub, nil
}

func (m *Mongo) pump(ctx context.Context, sub *Subscription, cs *mongo.ChangeStream, snapshot []bson.M) error {
	filter := newVersionFilter()
	deliver := func(d Document) bool {
		kind, ok := filter.accept(d)
		if !ok {
			return true
		}
		return sub.send(ctx, Change{Kind: kind, Doc: d})
	}

	for _, raw := range snapshot {
		if !deliver(fromMongo(raw)) {
			return nil
		}
	}
	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			return fmt.Errorf("decode change event: %w", err)
		}
		if ev.FullDocument == nil {
			continue
		}
		if !deliver(fromMongo(ev.FullDocument)) {
			return nil
		}
	}
	return cs.Err()
}

// fromMongo strips the reserved keys and normalizes BSON-specific values.
func fromMongo(raw bson.M) Document {
	d := Document{Fields: Fields{}}
	for k, v := range raw {
		switch k {
		case "_id":
		case mongoParentKey:
			d.Collection, _ = v.(string)
		case mongoIDKey:
			d.ID, _ = v.(string)
		case mongoVersionKey:
			d.Version = toInt64(v)
		default:
			d.Fields[k] = fromBSONValue(v)
		}
	}
	return d
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	}
	return v
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}
