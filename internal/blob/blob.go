// Package blob is the object storage collaborator: avatar images keyed by
// path ("/{uid}"), served back over HTTP at {publicURL}/avatars/{uid}.
package blob

import (
	"context"
	"strings"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("blob")

// Object is a stored binary with its MIME type.
type Object struct {
	Data        []byte
	ContentType string
}

// Store reads and writes binary objects.
type Store interface {
	// Put creates or replaces the object at path.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// Get returns the object at path or an error wrapping chaterr.ErrNotFound.
	Get(ctx context.Context, path string) (Object, error)
	// Delete removes the object at path if present.
	Delete(ctx context.Context, path string) error
	// DownloadURL returns the public URL of an existing object.
	DownloadURL(ctx context.Context, path string) (string, error)
}

// URLFor joins publicURL and path into the avatar download URL.
func URLFor(publicURL, path string) string {
	return strings.TrimRight(publicURL, "/") + "/avatars/" + strings.TrimLeft(path, "/")
}

// PathFromUID is the inverse of the /avatars/:uid route.
func PathFromUID(uid string) string {
	return "/" + uid
}
