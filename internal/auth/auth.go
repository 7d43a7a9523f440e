// Package auth resolves the player identity passed to the game: offline
// profiles derived from a username, or a Microsoft account signed in through
// the device-code flow.
package auth

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Account types understood by the launcher backend
const (
	TypeOffline   = "offline"
	TypeMicrosoft = "msa"
)

var (
	// ErrInvalidUsername is returned for names the game would reject
	ErrInvalidUsername = errors.New("username must be 3-16 characters of letters, digits or underscore")
	// ErrNotLoggedIn means no Microsoft session is cached
	ErrNotLoggedIn = errors.New("not logged in to a Microsoft account")
	// ErrLoginCancelled is returned by a login that was cancelled or superseded
	ErrLoginCancelled = errors.New("login cancelled")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Credentials identify the player to the game
type Credentials struct {
	Username    string
	UUID        string
	AccessToken string
	Type        string
}

// Offline builds credentials for an offline profile. The UUID matches the
// one the game server derives for the same name.
func Offline(username string) (Credentials, error) {
	if !usernamePattern.MatchString(username) {
		return Credentials{}, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return Credentials{
		Username:    username,
		UUID:        OfflineUUID(username).String(),
		AccessToken: "0",
		Type:        TypeOffline,
	}, nil
}

// OfflineUUID is the name-based (MD5, version 3) UUID of "OfflinePlayer:<name>"
func OfflineUUID(username string) uuid.UUID {
	h := md5.Sum([]byte("OfflinePlayer:" + username))
	h[6] = (h[6] & 0x0f) | 0x30
	h[8] = (h[8] & 0x3f) | 0x80
	id, _ := uuid.FromBytes(h[:])
	return id
}

// Request selects how to authenticate a launch
type Request struct {
	Username  string
	Microsoft bool
}

// Session provides cached Microsoft credentials
type Session interface {
	Cached(ctx context.Context) (Credentials, error)
}

// Resolver picks offline or Microsoft credentials for a launch
type Resolver struct {
	microsoft Session
}

// NewResolver creates a Resolver. microsoft may be nil when Microsoft
// accounts are not configured.
func NewResolver(microsoft Session) *Resolver {
	return &Resolver{microsoft: microsoft}
}

// Resolve returns the credentials for req. Microsoft launches never prompt:
// they need a session created beforehand by Login.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Credentials, error) {
	if !req.Microsoft {
		return Offline(req.Username)
	}
	if r.microsoft == nil {
		return Credentials{}, ErrNotLoggedIn
	}
	creds, err := r.microsoft.Cached(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if creds.Username == "" {
		creds.Username = req.Username
	}
	return creds, nil
}
