package blob

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const contentTypeKey = "contentType"

// GridFS stores objects in a MongoDB GridFS bucket, using the path as the
// file name. Put uploads a new revision and then removes older ones.
type GridFS struct {
	bucket    *mongo.GridFSBucket
	publicURL string
}

// NewGridFS returns a GridFS store over bucket.
func NewGridFS(bucket *mongo.GridFSBucket, publicURL string) *GridFS {
	return &GridFS{bucket: bucket, publicURL: publicURL}
}

func (g *GridFS) Put(ctx context.Context, path string, data []byte, contentType string) error {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: contentTypeKey, Value: contentType}})
	id, err := g.bucket.UploadFromStream(ctx, path, bytes.NewReader(data), opts)
	if err != nil {
		return chaterr.NewWrite(path+" put", err)
	}

	// Older revisions are only garbage; a failure here leaves the new
	// revision readable because downloads pick the latest.
	if err := g.deleteRevisions(ctx, path, bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: id}}}}); err != nil {
		log.Warningf("removing old revisions of %s: %v", path, err)
	}
	return nil
}

func (g *GridFS) Get(ctx context.Context, path string) (Object, error) {
	stream, err := g.bucket.OpenDownloadStreamByName(ctx, path)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return Object{}, chaterr.NewRead(path+" get", chaterr.ErrNotFound)
	}
	if err != nil {
		return Object{}, chaterr.NewRead(path+" get", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return Object{}, chaterr.NewRead(path+" get", err)
	}

	obj := Object{Data: data, ContentType: "application/octet-stream"}
	if file := stream.GetFile(); file != nil && file.Metadata != nil {
		if ct, ok := file.Metadata.Lookup(contentTypeKey).StringValueOK(); ok {
			obj.ContentType = ct
		}
	}
	return obj, nil
}

func (g *GridFS) Delete(ctx context.Context, path string) error {
	return chaterr.NewWrite(path+" delete", g.deleteRevisions(ctx, path, nil))
}

func (g *GridFS) DownloadURL(ctx context.Context, path string) (string, error) {
	n, err := g.countRevisions(ctx, path)
	if err != nil {
		return "", chaterr.NewRead(path+" url", err)
	}
	if n == 0 {
		return "", chaterr.NewRead(path+" url", chaterr.ErrNotFound)
	}
	return URLFor(g.publicURL, path), nil
}

type gridFile struct {
	ID bson.ObjectID `bson:"_id"`
}

func (g *GridFS) revisions(ctx context.Context, path string, extra bson.D) ([]gridFile, error) {
	filter := append(bson.D{{Key: "filename", Value: path}}, extra...)
	cursor, err := g.bucket.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var files []gridFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (g *GridFS) countRevisions(ctx context.Context, path string) (int, error) {
	files, err := g.revisions(ctx, path, nil)
	return len(files), err
}

func (g *GridFS) deleteRevisions(ctx context.Context, path string, extra bson.D) error {
	files, err := g.revisions(ctx, path, extra)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := g.bucket.Delete(ctx, f.ID); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			return err
		}
	}
	return nil
}
