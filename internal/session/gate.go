// Package session decides whether the caller is signed in and runs the
// sign-in, sign-out and registration flows against the identity, object
// storage and document collaborators.
package session

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/avatar"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/blob"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/observe"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("session")

// Status texts shown to the user.
const (
	StatusSignedIn      = "Successfully signed in user"
	StatusRegistered    = "SUCCESS"
	StatusMissingAvatar = "You must select an avatar image"
)

// ErrMissingAvatar is returned by Register when no image was supplied.
var ErrMissingAvatar = errors.New("avatar image is required")

// AuthClient is the identity collaborator.
type AuthClient interface {
	CurrentIdentity(ctx context.Context) (auth.Identity, bool, error)
	SignIn(ctx context.Context, email, password string) (auth.Identity, error)
	CreateAccount(ctx context.Context, email, password string) (auth.Identity, error)
	SignOut(ctx context.Context) error
	DeleteAccount(ctx context.Context, uid string) error
}

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Email    string
	Password string
	Avatar   image.Image
}

// Gate holds one caller's session. It fails closed: until Start or a
// successful Login/Register, the caller is not authenticated.
type Gate struct {
	auth  AuthClient
	blobs blob.Store
	docs  docstore.Store

	// RollbackOnFailure deletes the new account (and its avatar, if
	// uploaded) when a later registration step fails. Off by default, which
	// leaves a partial registration in place.
	RollbackOnFailure bool

	mu          sync.RWMutex
	identity    auth.Identity
	hasIdentity bool

	loggedOut *observe.Value[bool]
	status    *observe.Value[string]
}

// NewGate returns a Gate over the three collaborators.
func NewGate(a AuthClient, blobs blob.Store, docs docstore.Store) *Gate {
	return &Gate{
		auth:      a,
		blobs:     blobs,
		docs:      docs,
		loggedOut: observe.NewValue(false),
		status:    observe.NewValue(""),
	}
}

// Start asks the identity collaborator once for the current identity. No
// identity, or a failed lookup, marks the session logged out.
func (g *Gate) Start(ctx context.Context) {
	id, ok, err := g.auth.CurrentIdentity(ctx)
	if err != nil {
		log.Warningf("current identity lookup failed, treating as signed out: %v", err)
	}
	if err != nil || !ok {
		g.clearIdentity()
		g.loggedOut.Set(true)
		return
	}
	g.setIdentity(id)
}

// IsAuthenticated reports whether an identity is held.
func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasIdentity
}

// CurrentUserID returns the signed-in user's id.
func (g *Gate) CurrentUserID() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity.UID, g.hasIdentity
}

// Identity returns the held identity including its session token.
func (g *Gate) Identity() (auth.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity, g.hasIdentity
}

// LoggedOut is set when the caller must be sent to credential entry.
func (g *Gate) LoggedOut() *observe.Value[bool] { return g.loggedOut }

// Status is the user-visible outcome of the last flow.
func (g *Gate) Status() *observe.Value[string] { return g.status }

// Login signs in with email and password.
func (g *Gate) Login(ctx context.Context, email, password string) error {
	id, err := g.auth.SignIn(ctx, email, password)
	if err != nil {
		g.status.Set("Failed to sign in user: " + err.Error())
		return err
	}
	g.setIdentity(id)
	g.status.Set(StatusSignedIn)
	return nil
}

// SignOut marks the session logged out and asks the collaborator to end it.
// A collaborator failure is only logged.
func (g *Gate) SignOut(ctx context.Context) {
	id, ok := g.Identity()
	g.clearIdentity()
	g.loggedOut.Set(true)

	if ok {
		ctx = auth.ContextWithToken(ctx, id.Token)
	}
	if err := g.auth.SignOut(ctx); err != nil {
		log.Warningf("failed to sign out: %v", err)
	}
}

// Register creates an account, uploads the avatar, resolves its download URL
// and writes the profile document. Each step's failure sets its own status
// text and stops the flow; earlier steps are not undone unless
// RollbackOnFailure is set.
func (g *Gate) Register(ctx context.Context, req RegisterRequest) error {
	if req.Avatar == nil {
		g.status.Set(StatusMissingAvatar)
		return chaterr.NewWrite("register", ErrMissingAvatar)
	}

	id, err := g.auth.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		g.status.Set("Failed to create user: " + err.Error())
		return err
	}
	g.status.Set("Successfully created user: " + id.UID)

	path := data.AvatarPath(id.UID)
	uploaded := false
	fail := func(status string, err error) error {
		g.status.Set(status + err.Error())
		if g.RollbackOnFailure {
			g.rollback(ctx, id.UID, path, uploaded)
		}
		return err
	}

	jpg, err := avatar.Encode(req.Avatar)
	if err != nil {
		return fail("Failed to upload image to storage: ", chaterr.NewWrite(path+" encode", err))
	}
	if err := g.blobs.Put(ctx, path, jpg, avatar.ContentType); err != nil {
		return fail("Failed to upload image to storage: ", err)
	}
	uploaded = true

	url, err := g.blobs.DownloadURL(ctx, path)
	if err != nil {
		return fail("Failed to retrieve download URL: ", err)
	}

	user := data.User{ID: id.UID, Email: id.Email, AvatarURL: url}
	if err := g.docs.Set(ctx, data.UsersCollection, id.UID, data.UserFields(user)); err != nil {
		return fail("Failed to store user information: ", err)
	}

	g.setIdentity(id)
	g.status.Set(StatusRegistered)
	return nil
}

func (g *Gate) rollback(ctx context.Context, uid, path string, uploaded bool) {
	if uploaded {
		if err := g.blobs.Delete(ctx, path); err != nil {
			log.Warningf("rollback: deleting avatar %s: %v", path, err)
		}
	}
	if err := g.auth.DeleteAccount(ctx, uid); err != nil {
		log.Warningf("rollback: deleting account %s: %v", uid, err)
		return
	}
	log.Infof("rolled back registration of %s", uid)
}

func (g *Gate) setIdentity(id auth.Identity) {
	g.mu.Lock()
	g.identity = id
	g.hasIdentity = true
	g.mu.Unlock()
	g.loggedOut.Set(false)
}

func (g *Gate) clearIdentity() {
	g.mu.Lock()
	g.identity = auth.Identity{}
	g.hasIdentity = false
	g.mu.Unlock()
}
