// Package directory lists the users a caller can start a conversation with.
package directory

import (
	"context"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/observe"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("directory")

// Service reads user profiles.
type Service struct {
	docs   docstore.Store
	status *observe.Value[string]
}

// New returns a Service over docs.
func New(docs docstore.Store) *Service {
	return &Service{docs: docs, status: observe.NewValue("")}
}

// Status holds the last failure text.
func (s *Service) Status() *observe.Value[string] { return s.status }

// ListOtherUsers returns every user except excludingID, in the order the
// store returns them. Profiles that do not decode are skipped.
func (s *Service) ListOtherUsers(ctx context.Context, excludingID string) ([]data.User, error) {
	docs, err := s.docs.Query(ctx, data.UsersCollection,
		docstore.Filter{Field: data.FieldUID, Op: docstore.NotEqual, Value: excludingID})
	if err != nil {
		err = chaterr.NewRead("list users", err)
		s.status.Set("Failed to fetch users: " + err.Error())
		return []data.User{}, err
	}

	users := make([]data.User, 0, len(docs))
	for _, d := range docs {
		u, err := data.DecodeUser(d)
		if err != nil {
			log.Errorf("skipping user profile: %v", err)
			continue
		}
		// A profile without a uid field passes the filter but decodes to
		// its document ID.
		if u.ID == excludingID {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// GetUser fetches one profile.
func (s *Service) GetUser(ctx context.Context, uid string) (data.User, error) {
	d, err := s.docs.Get(ctx, data.UsersCollection, uid)
	if err != nil {
		return data.User{}, err
	}
	return data.DecodeUser(d)
}
